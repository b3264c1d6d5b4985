package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelstream.ai/internal/sim/tuning"
	"voxelstream.ai/internal/sim/world"
	"voxelstream.ai/internal/sim/world/feature/streaming/worker"
	"voxelstream.ai/internal/sim/world/terrain/block"
	"voxelstream.ai/internal/sim/world/terrain/ledger"
	"voxelstream.ai/internal/sim/world/terrain/store"
)

// replay rebuilds the modification ledger from the edit log and regenerates
// every chunk the event log says was generated or rebuilt, comparing block
// counts. Generation is a pure function of seed, biome and ledger, so any
// mismatch points at a nondeterminism bug.
func main() {
	var (
		dataDir    = flag.String("data", "./data", "runtime data directory")
		worldID    = flag.String("world", "world_1", "world id")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "tuning the server ran with")
		fromTick   = flag.Uint64("from_tick", 0, "start verifying from tick (inclusive, optional)")
		toTick     = flag.Uint64("to_tick", 0, "stop at tick (inclusive, optional)")
		strict     = flag.Bool("strict", false, "exit non-zero on the first mismatch")
	)
	flag.Parse()

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}
	cfg, err := tune.World()
	if err != nil {
		fmt.Fprintln(os.Stderr, "tuning:", err)
		os.Exit(1)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	var events []world.Event
	if err := readLogs(filepath.Join(worldDir, "events"), "events-", func(line []byte) error {
		var ev world.Event
		if err := json.Unmarshal(line, &ev); err != nil {
			return err
		}
		events = append(events, ev)
		return nil
	}); err != nil {
		fmt.Fprintln(os.Stderr, "read events:", err)
		os.Exit(1)
	}
	var edits []world.EditEntry
	if err := readLogs(filepath.Join(worldDir, "edits"), "edits-", func(line []byte) error {
		var e world.EditEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		edits = append(edits, e)
		return nil
	}); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "read edits:", err)
		os.Exit(1)
	}
	if len(events) == 0 {
		fmt.Fprintln(os.Stderr, "no events found in", worldDir)
		os.Exit(1)
	}

	r := newReplayer(cfg.Seed, cfg.Biome, cfg.ColumnDepth)
	r.from, r.to = *fromTick, *toTick
	if *strict {
		r.onMismatch = func(m mismatch) {
			fmt.Fprintf(os.Stderr, "mismatch: %s\n", m)
			os.Exit(1)
		}
	}
	res, err := r.run(events, edits)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	for _, m := range res.Mismatches {
		fmt.Println("mismatch:", m)
	}
	fmt.Printf("replay done: events=%d edits=%d checked=%d mismatches=%d resets=%d\n",
		len(events), len(edits), res.Checked, len(res.Mismatches), res.Resets)
	if len(res.Mismatches) > 0 {
		os.Exit(1)
	}
}

type mismatch struct {
	Tick uint64
	Kind world.EventKind
	Key  store.ChunkKey
	Want int
	Got  int
	Err  error
}

func (m mismatch) String() string {
	if m.Err != nil {
		return fmt.Sprintf("tick=%d %s %d,%d: %v", m.Tick, m.Kind, m.Key.CX, m.Key.CZ, m.Err)
	}
	return fmt.Sprintf("tick=%d %s %d,%d: blocks want=%d got=%d", m.Tick, m.Kind, m.Key.CX, m.Key.CZ, m.Want, m.Got)
}

type result struct {
	Checked    int
	Resets     int
	Mismatches []mismatch
}

type replayer struct {
	seed  int64
	biome block.Biome
	depth int
	ledg  *ledger.Memory

	from, to   uint64
	onMismatch func(mismatch)
}

func newReplayer(seed int64, biome block.Biome, depth int) *replayer {
	return &replayer{seed: seed, biome: biome, depth: depth, ledg: ledger.NewMemory()}
}

// run merges both logs by tick. An edit or reset stamped at tick T is applied
// before anything generated at a later tick, which matches the loop: requests
// are served between ticks and the next Tick advances the clock first.
func (r *replayer) run(events []world.Event, edits []world.EditEntry) (result, error) {
	var res result
	sort.SliceStable(edits, func(i, j int) bool { return edits[i].Seq < edits[j].Seq })
	sort.SliceStable(events, func(i, j int) bool { return events[i].Tick < events[j].Tick })

	ei := 0
	for _, ev := range events {
		if r.to != 0 && ev.Tick > r.to {
			break
		}
		for ei < len(edits) && edits[ei].Tick < ev.Tick {
			if err := r.applyEdit(edits[ei]); err != nil {
				return res, fmt.Errorf("edit seq=%d: %w", edits[ei].Seq, err)
			}
			ei++
		}
		switch ev.Kind {
		case world.EventBiomeReset:
			b, err := block.ParseBiome(ev.Detail)
			if err != nil {
				return res, fmt.Errorf("tick %d: %w", ev.Tick, err)
			}
			r.biome = b
			r.ledg.Reset()
			res.Resets++
			// Edits stamped the same tick as a reset landed after it.
			for ei < len(edits) && edits[ei].Tick == ev.Tick {
				if err := r.applyEdit(edits[ei]); err != nil {
					return res, fmt.Errorf("edit seq=%d: %w", edits[ei].Seq, err)
				}
				ei++
			}
		case world.EventGenerated, world.EventRebuilt:
			if ev.Tick < r.from {
				continue
			}
			res.Checked++
			if m, bad := r.check(ev); bad {
				res.Mismatches = append(res.Mismatches, m)
				if r.onMismatch != nil {
					r.onMismatch(m)
				}
			}
		}
	}
	return res, nil
}

func (r *replayer) applyEdit(e world.EditEntry) error {
	a, err := ledger.ParseAction(e.Action)
	if err != nil {
		return err
	}
	p := block.Pos{X: e.Pos[0], Y: e.Pos[1], Z: e.Pos[2]}
	rec := ledger.Record{Pos: p, Action: a, Seq: e.Seq}
	if a == ledger.Add {
		t, err := block.Parse(e.Block)
		if err != nil {
			return err
		}
		rec.Block = t
	}
	r.ledg.Put(store.KeyOf(p), rec)
	return nil
}

func (r *replayer) check(ev world.Event) (mismatch, bool) {
	k := store.ChunkKey{CX: ev.CX, CZ: ev.CZ}
	resp := worker.Generate(worker.Request{
		Key:           k,
		Biome:         r.biome,
		Seed:          r.seed,
		Depth:         r.depth,
		Modifications: r.ledg.Records(k),
	})
	m := mismatch{Tick: ev.Tick, Kind: ev.Kind, Key: k, Want: ev.Blocks}
	if resp.Err != nil {
		m.Err = resp.Err
		return m, true
	}
	m.Got = len(resp.Blocks)
	return m, m.Got != m.Want
}

func readLogs(dir, prefix string, fn func(line []byte) error) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := readLog(filepath.Join(dir, name), fn); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func readLog(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()
	return scanLines(dec, fn)
}

func scanLines(r io.Reader, fn func(line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}
