package papergraph

import "github.com/prometheus/client_golang/prometheus"

// Document outcome labels.
const (
	statusOK               = "ok"
	statusExtractionFailed = "extraction_failed"
	statusStoreFailed      = "store_failed"
	statusParseFailed      = "parse_failed"
)

var (
	ingestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "papergraph_ingest_duration_seconds",
			Help:    "Time spent extracting and committing one document",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
		[]string{"status"},
	)

	documentsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "papergraph_documents_processed_total",
			Help: "Total number of documents ingested, by outcome",
		},
		[]string{"status"},
	)

	nodesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papergraph_nodes_written_total",
		Help: "Node upserts committed to the graph store",
	})

	edgesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papergraph_edges_written_total",
		Help: "Edges created in the graph store",
	})

	edgesSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papergraph_edges_skipped_total",
		Help: "Extracted edges dropped because an endpoint label was unresolved",
	})

	extractionCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papergraph_extraction_cache_hits_total",
		Help: "Extractions served from the cache without a model call",
	})
)

func init() {
	prometheus.MustRegister(ingestDuration)
	prometheus.MustRegister(documentsProcessed)
	prometheus.MustRegister(nodesWritten)
	prometheus.MustRegister(edgesWritten)
	prometheus.MustRegister(edgesSkipped)
	prometheus.MustRegister(extractionCacheHits)
}
