package chain

import "raglab/internal/prompt"

var (
	mapTemplate = prompt.Template{
		Name: "map",
		System: `Use the following portion of a long document to see if any of the text is relevant to answer the question.
Return any relevant text verbatim.
______________________
{context}`,
		Human: "{question}",
	}

	combineTemplate = prompt.Template{
		Name: "combine",
		System: `Given the following extracted parts of a long document and a question, create a final answer.
If you don't know the answer, just say that you don't know. Don't try to make up an answer.
______________________
{summaries}`,
		Human: "{question}",
	}

	initialTemplate = prompt.Template{
		Name: "refine_initial",
		System: `Context information is below.
---------------------
{context}
---------------------
Given the context information and not prior knowledge, answer any questions`,
		Human: "{question}",
	}

	refineTemplate = prompt.Template{
		Name: "refine",
		Human: `We have the opportunity to refine the existing answer (only if needed) with some more context below.
------------
{context}
------------
Given the new context, refine the original answer to better answer the question. If the context isn't useful, return the original answer.`,
	}

	rerankTemplate = prompt.Template{
		Name: "map_rerank",
		Human: `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

In addition to giving an answer, also return a score of how fully it answered the user's question. This should be in the following format:

Question: [question here]
Helpful Answer: [answer here]
Score: [score between 0 and 100]

How to determine the score:
- Higher is a better answer
- Better responds fully to the asked question, with sufficient level of detail
- If you do not know the answer based on the context, that should be a score of 0
- Don't be overconfident!

Begin!

Context:
---------
{context}
---------
Question: {question}
Helpful Answer:`,
	}
)
