package qdrant

import (
	"context"
	"iter"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"raglab/internal/domain"
	"raglab/internal/vectorstore"
)

// Config contains connection details for a Qdrant server.
type Config struct {
	Addr     string
	APIKey   string
	Distance domain.Distance
}

// Storage is the Qdrant backend over gRPC. Upsert creates a missing
// collection, sized from the first vector it writes. Scores are normalised
// with the distance each collection was created with, not the default.
type Storage struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	embedder    domain.Embedder
	distance    domain.Distance
	log         *slog.Logger

	mu        sync.Mutex
	distances map[string]domain.Distance
}

// NewStorage dials addr. The connection is established lazily by gRPC.
func NewStorage(cfg Config, embedder domain.Embedder, log *slog.Logger) (*Storage, error) {
	opts := []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	if cfg.APIKey != "" {
		opts = append(opts, grpc.WithUnaryInterceptor(apiKeyInterceptor(cfg.APIKey)))
	}
	conn, err := grpc.NewClient(cfg.Addr, opts...)
	if err != nil {
		return nil, domain.BackendError(cfg.Addr, err)
	}
	s := newWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), cfg.Distance, embedder, log)
	s.conn = conn
	return s, nil
}

func newWithClients(points pb.PointsClient, collections pb.CollectionsClient, distance domain.Distance, embedder domain.Embedder, log *slog.Logger) *Storage {
	if log == nil {
		log = slog.Default()
	}
	if distance == "" {
		distance = domain.DistanceCosine
	}
	return &Storage{
		points:      points,
		collections: collections,
		embedder:    embedder,
		distance:    distance,
		log:         log.With("backend", domain.BackendQdrant.String()),
		distances:   map[string]domain.Distance{},
	}
}

func apiKeyInterceptor(key string) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		ctx = metadata.AppendToOutgoingContext(ctx, "api-key", key)
		return invoker(ctx, method, req, reply, cc, opts...)
	}
}

// Close releases the gRPC connection.
func (s *Storage) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Storage) exists(ctx context.Context, name string) (bool, error) {
	resp, err := s.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: name})
	if err != nil {
		return false, mapErr(name, err)
	}
	return resp.GetResult().GetExists(), nil
}

// CreateCollection creates an empty collection. Qdrant needs the vector
// size up front, so it is probed from the embedder.
func (s *Storage) CreateCollection(ctx context.Context, name string, distance domain.Distance) error {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return domain.Errorf(domain.KindDuplicateCollection, name, "collection already exists")
	}
	probe, err := s.embedder.Embed(ctx, name)
	if err != nil {
		return domain.ModelServiceError(s.embedder.Name(), err)
	}
	return s.create(ctx, name, uint64(len(probe)), distance)
}

func (s *Storage) create(ctx context.Context, name string, size uint64, distance domain.Distance) error {
	_, err := s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{Size: size, Distance: toDistance(distance)},
			},
		},
	})
	if err != nil {
		return mapErr(name, err)
	}
	s.remember(name, distance)
	s.log.InfoContext(ctx, "created collection", "collection", name, "dimension", size, "distance", distance)
	return nil
}

func (s *Storage) DeleteCollection(ctx context.Context, name string) error {
	ok, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return domain.Errorf(domain.KindCollectionNotFound, name, "collection does not exist")
	}
	if _, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: name}); err != nil {
		return mapErr(name, err)
	}
	s.mu.Lock()
	delete(s.distances, name)
	s.mu.Unlock()
	return nil
}

func (s *Storage) remember(name string, d domain.Distance) {
	s.mu.Lock()
	s.distances[name] = d
	s.mu.Unlock()
}

// collectionDistance reads the distance a collection was created with and
// caches it by name.
func (s *Storage) collectionDistance(ctx context.Context, name string) (domain.Distance, error) {
	s.mu.Lock()
	d, ok := s.distances[name]
	s.mu.Unlock()
	if ok {
		return d, nil
	}
	resp, err := s.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name})
	if err != nil {
		return "", mapErr(name, err)
	}
	params := resp.GetResult().GetConfig().GetParams().GetVectorsConfig().GetParams()
	if params == nil {
		d = s.distance
	} else {
		d = fromDistance(params.GetDistance())
	}
	s.remember(name, d)
	return d, nil
}

// ListCollections lists collections and counts each one as it is yielded.
func (s *Storage) ListCollections(ctx context.Context) iter.Seq2[domain.CollectionInfo, error] {
	return func(yield func(domain.CollectionInfo, error) bool) {
		resp, err := s.collections.List(ctx, &pb.ListCollectionsRequest{})
		if err != nil {
			yield(domain.CollectionInfo{}, domain.BackendError("list collections", err))
			return
		}
		exact := false
		for _, c := range resp.GetCollections() {
			info := domain.CollectionInfo{Name: c.GetName()}
			count, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: info.Name, Exact: &exact})
			if err != nil {
				if !yield(info, mapErr(info.Name, err)) {
					return
				}
				continue
			}
			info.Count = count.GetResult().GetCount()
			if !yield(info, nil) {
				return
			}
		}
	}
}

func (s *Storage) Upsert(ctx context.Context, name string, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return domain.ModelServiceError(s.embedder.Name(), err)
	}

	ok, err := s.exists(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		if err := s.create(ctx, name, uint64(len(vectors[0])), s.distance); err != nil {
			return err
		}
	}

	points := make([]*pb.PointStruct, len(chunks))
	for i, c := range chunks {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: uuid.NewString()}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[i]}},
			},
			Payload: toPayload(c),
		}
	}
	wait := true
	if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{CollectionName: name, Wait: &wait, Points: points}); err != nil {
		return mapErr(name, err)
	}
	s.log.DebugContext(ctx, "upserted points", "collection", name, "count", len(points))
	return nil
}

// DeleteSource removes the points loaded from source and reports how many
// there were.
func (s *Storage) DeleteSource(ctx context.Context, name, source string) (int, error) {
	filter := toFilter(map[string]any{"source": source})
	exact := true
	count, err := s.points.Count(ctx, &pb.CountPoints{CollectionName: name, Filter: filter, Exact: &exact})
	if err != nil {
		return 0, mapErr(name, err)
	}
	n := int(count.GetResult().GetCount())
	if n == 0 {
		return 0, nil
	}
	wait := true
	_, err = s.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: name,
		Wait:           &wait,
		Points:         &pb.PointsSelector{PointsSelectorOneOf: &pb.PointsSelector_Filter{Filter: filter}},
	})
	if err != nil {
		return 0, mapErr(name, err)
	}
	s.log.DebugContext(ctx, "deleted points", "collection", name, "source", source, "count", n)
	return n, nil
}

func (s *Storage) Search(ctx context.Context, name string, req domain.SearchRequest) (domain.Retrieval, error) {
	return vectorstore.Dispatch(ctx, s, s.embedder, name, req, s.log)
}

// Nearest runs a point search. Score is Qdrant's native score for the
// collection's distance.
func (s *Storage) Nearest(ctx context.Context, name string, q vectorstore.NearestQuery) ([]vectorstore.Hit, error) {
	distance, err := s.collectionDistance(ctx, name)
	if err != nil {
		return nil, err
	}
	req := &pb.SearchPoints{
		CollectionName: name,
		Vector:         q.Vector,
		Limit:          uint64(q.Limit),
		Filter:         toFilter(q.Filter),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if q.WithVectors {
		req.WithVectors = &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}}
	}
	resp, err := s.points.Search(ctx, req)
	if err != nil {
		return nil, mapErr(name, err)
	}
	hits := make([]vectorstore.Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = vectorstore.Hit{
			Chunk:     fromPayload(r.GetPayload()),
			Score:     float64(r.GetScore()),
			Relevance: relevance(distance, float64(r.GetScore())),
		}
		if q.WithVectors {
			hits[i].Vector = r.GetVectors().GetVector().GetData()
		}
	}
	return hits, nil
}

// relevance maps a native score to [0,1], higher meaning closer.
func relevance(distance domain.Distance, score float64) float64 {
	switch distance {
	case domain.DistanceL2:
		return math.Max(0, 1-score/math.Sqrt2)
	case domain.DistanceIP:
		return math.Max(0, math.Min(1, (score+1)/2))
	default:
		return math.Max(0, score)
	}
}

func mapErr(name string, err error) error {
	switch status.Code(err) {
	case codes.NotFound:
		return domain.NewError(domain.KindCollectionNotFound, name, "collection does not exist", err)
	case codes.AlreadyExists:
		return domain.NewError(domain.KindDuplicateCollection, name, "collection already exists", err)
	default:
		return domain.BackendError(name, err)
	}
}
