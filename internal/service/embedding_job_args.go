package service

import (
	"context"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"github.com/doclens/engine/internal/models"
)

const (
	objectEmbeddingKind = "object_embedding"
	// EmbeddingsQueueName is the River queue used for object embedding jobs.
	EmbeddingsQueueName = "embeddings"
)

// ObjectEmbeddingInserter inserts embedding jobs (e.g. River client).
type ObjectEmbeddingInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// ObjectEmbeddingArgs is the job payload for embedding and storing one
// object in one collection. Used by IngestService to enqueue and by
// ObjectEmbeddingWorker to run. Uniqueness is by collection and object id
// so duplicate submissions of the same object do not create duplicate jobs.
type ObjectEmbeddingArgs struct {
	Collection string          `json:"collection" river:"unique"`
	ObjectID   string          `json:"object_id" river:"unique"`
	Text       string          `json:"text"`
	Metadata   models.Metadata `json:"metadata,omitempty"`
}

// Kind returns the River job kind.
func (ObjectEmbeddingArgs) Kind() string { return objectEmbeddingKind }

var _ river.JobArgs = ObjectEmbeddingArgs{}
