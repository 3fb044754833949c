package graph

import (
	"context"
	"errors"
	"log/slog"

	"github.com/brunobiangulo/papergraph/store"
	"github.com/brunobiangulo/papergraph/value"
)

// ErrNoDocument is returned when a batch is committed without provenance.
var ErrNoDocument = errors.New("graph: document id required")

// SkippedEdge records an edge dropped because an endpoint label was not
// produced by the same batch.
type SkippedEdge struct {
	SourceLabel  string   `json:"source_label"`
	TargetLabel  string   `json:"target_label"`
	RelationType string   `json:"relation_type"`
	Missing      []string `json:"missing"`
}

// CommitReport summarises one batch commit.
type CommitReport struct {
	NodesWritten int           `json:"nodes_written"`
	EdgesWritten int           `json:"edges_written"`
	EdgesSkipped int           `json:"edges_skipped"`
	Skipped      []SkippedEdge `json:"skipped,omitempty"`
}

// Transactor is implemented by stores that can scope a batch to one
// transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(store.Writer) error) error
}

// Committer persists an extraction batch into the graph store.
type Committer struct {
	store  store.Writer
	atomic bool
}

// CommitterOption configures a Committer.
type CommitterOption func(*Committer)

// WithAtomicBatches makes every batch all-or-nothing when the store
// supports transactions.
func WithAtomicBatches() CommitterOption {
	return func(c *Committer) { c.atomic = true }
}

// NewCommitter creates a committer writing to w.
func NewCommitter(w store.Writer, opts ...CommitterOption) *Committer {
	c := &Committer{store: w}
	for _, o := range opts {
		o(c)
	}
	if c.atomic {
		if _, ok := w.(Transactor); !ok {
			slog.Warn("graph: store does not support transactions, batches will not be atomic")
			c.atomic = false
		}
	}
	return c
}

// Commit writes the batch for documentID. Nodes are stamped with the
// document as their source and upserted in order; edges are created only
// when both endpoint labels resolve within this batch.
//
// Without atomic batches a store error stops the commit where it happened:
// earlier writes stay persisted and the partial report is returned with the
// error. With atomic batches the transaction is rolled back and the report
// carries no writes.
func (c *Committer) Commit(ctx context.Context, documentID string, ex Extraction) (CommitReport, error) {
	if documentID == "" {
		return CommitReport{}, ErrNoDocument
	}
	if !c.atomic {
		var report CommitReport
		err := commitBatch(ctx, c.store, documentID, ex, &report)
		return report, err
	}

	var report CommitReport
	err := c.store.(Transactor).InTx(ctx, func(w store.Writer) error {
		report = CommitReport{}
		return commitBatch(ctx, w, documentID, ex, &report)
	})
	if err != nil {
		report.NodesWritten, report.EdgesWritten = 0, 0
	}
	return report, err
}

func commitBatch(ctx context.Context, w store.Writer, documentID string, ex Extraction, report *CommitReport) error {
	// Batch-local: a label seen twice resolves to its last upsert.
	ids := make(map[string]int64, len(ex.Nodes))

	for _, n := range ex.Nodes {
		props := n.Properties.With(store.SourceKey, value.StringOf(documentID))
		id, err := w.UpsertNode(ctx, n.Label, n.Type, props)
		if err != nil {
			return err
		}
		ids[n.Label] = id
		report.NodesWritten++
	}

	for _, e := range ex.Edges {
		srcID, srcOK := ids[e.SourceLabel]
		dstID, dstOK := ids[e.TargetLabel]
		if !srcOK || !dstOK {
			var missing []string
			if !srcOK {
				missing = append(missing, e.SourceLabel)
			}
			if !dstOK && e.TargetLabel != e.SourceLabel {
				missing = append(missing, e.TargetLabel)
			}
			slog.Warn("graph: skipping edge, node not found",
				"document", documentID, "source", e.SourceLabel,
				"target", e.TargetLabel, "relation", e.RelationType)
			report.EdgesSkipped++
			report.Skipped = append(report.Skipped, SkippedEdge{
				SourceLabel:  e.SourceLabel,
				TargetLabel:  e.TargetLabel,
				RelationType: e.RelationType,
				Missing:      missing,
			})
			continue
		}

		props := e.Properties
		if props == nil {
			props = value.Map{}
		}
		if _, err := w.CreateEdge(ctx, srcID, dstID, e.RelationType, props); err != nil {
			return err
		}
		report.EdgesWritten++
	}

	return nil
}
