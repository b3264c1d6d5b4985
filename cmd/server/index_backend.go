package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"voxelstream.ai/internal/persistence/indexdb"
	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
)

type runtimeIndex interface {
	world.EventSink
	world.EditSink
	Close() error
	UpsertConfig(tune tuning.Tuning) error
}

func openRuntimeIndex(dataDir, worldID string, disableDB bool, logger *log.Logger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VS_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		return indexdb.OpenSQLite(filepath.Join(dataDir, "index", "stream.sqlite"))
	case "d1":
		endpoint := strings.TrimSpace(os.Getenv("VS_INDEX_D1_INGEST_URL"))
		if endpoint == "" {
			return nil, fmt.Errorf("VS_INDEX_BACKEND=d1 but VS_INDEX_D1_INGEST_URL is empty")
		}
		return indexdb.OpenD1(indexdb.D1Config{
			Endpoint:      endpoint,
			Token:         strings.TrimSpace(os.Getenv("VS_INDEX_D1_TOKEN")),
			WorldID:       worldID,
			BatchSize:     envInt("VS_INDEX_D1_BATCH_SIZE", 128),
			FlushInterval: time.Duration(envInt("VS_INDEX_D1_FLUSH_MS", 500)) * time.Millisecond,
			Logger:        logger,
		})
	default:
		return nil, fmt.Errorf("unsupported VS_INDEX_BACKEND: %s", backend)
	}
}

func writeIndexMetrics(w io.Writer, idx runtimeIndex) {
	switch v := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := v.Stats()
		fmt.Fprintf(w, "# HELP voxelstream_index_queue_depth Index write queue depth.\n")
		fmt.Fprintf(w, "# TYPE voxelstream_index_queue_depth gauge\n")
		fmt.Fprintf(w, "voxelstream_index_queue_depth{backend=\"sqlite\"} %d\n", s.QueueDepth)
		fmt.Fprintf(w, "# HELP voxelstream_index_dropped_total Index records dropped because the queue was full.\n")
		fmt.Fprintf(w, "# TYPE voxelstream_index_dropped_total counter\n")
		fmt.Fprintf(w, "voxelstream_index_dropped_total{backend=\"sqlite\",kind=\"event\"} %d\n", s.DropEventTotal)
		fmt.Fprintf(w, "voxelstream_index_dropped_total{backend=\"sqlite\",kind=\"edit\"} %d\n", s.DropEditTotal)
		fmt.Fprintf(w, "# HELP voxelstream_index_written_total Index records committed.\n")
		fmt.Fprintf(w, "# TYPE voxelstream_index_written_total counter\n")
		fmt.Fprintf(w, "voxelstream_index_written_total{backend=\"sqlite\"} %d\n", s.WrittenTotal)
		fmt.Fprintf(w, "# HELP voxelstream_index_fail_total Index records that failed to commit.\n")
		fmt.Fprintf(w, "# TYPE voxelstream_index_fail_total counter\n")
		fmt.Fprintf(w, "voxelstream_index_fail_total{backend=\"sqlite\"} %d\n", s.FailTotal)
	case *indexdb.D1Index:
		s := v.Stats()
		fmt.Fprintf(w, "# HELP voxelstream_index_queue_depth Index write queue depth.\n")
		fmt.Fprintf(w, "# TYPE voxelstream_index_queue_depth gauge\n")
		fmt.Fprintf(w, "voxelstream_index_queue_depth{backend=\"d1\"} %d\n", s.QueueDepth)
		fmt.Fprintf(w, "# HELP voxelstream_index_dropped_total Index records dropped because the queue was full.\n")
		fmt.Fprintf(w, "# TYPE voxelstream_index_dropped_total counter\n")
		fmt.Fprintf(w, "voxelstream_index_dropped_total{backend=\"d1\",kind=\"any\"} %d\n", s.QueueDroppedTotal)
		fmt.Fprintf(w, "# HELP voxelstream_index_flush_total Index batch flushes by result.\n")
		fmt.Fprintf(w, "# TYPE voxelstream_index_flush_total counter\n")
		fmt.Fprintf(w, "voxelstream_index_flush_total{backend=\"d1\",result=\"ok\"} %d\n", s.FlushOKTotal)
		fmt.Fprintf(w, "voxelstream_index_flush_total{backend=\"d1\",result=\"fail\"} %d\n", s.FlushFailTotal)
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
