package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxelstream.ai/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "edits":
			editsCmd(os.Args[2:])
			return
		case "db":
			dbCmd(os.Args[2:])
			return
		case "state":
			getCmd("state", "/admin/v1/stream/state", os.Args[2:])
			return
		case "chunks":
			getCmd("chunks", "/admin/v1/stream/chunks", os.Args[2:])
			return
		case "tuning":
			getCmd("tuning", "/admin/v1/stream/tuning", os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (optional)")
	_ = fs.Parse(args)

	base := filepath.Join(*dataDir, "worlds")
	if *worldID != "" {
		base = filepath.Join(base, *worldID)
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		fmt.Println(e.Name())
	}
}

// editsCmd prints audited edits from the compressed edit log, optionally
// restricted to a box and a tick window.
func editsCmd(args []string) {
	fs := flag.NewFlagSet("edits", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	aabb := fs.String("aabb", "", "AABB filter: x1,y1,z1:x2,y2,z2 (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, 0 = no bound)")
	_ = fs.Parse(args)

	min := [3]int{-1 << 31, -1 << 31, -1 << 31}
	max := [3]int{1<<31 - 1, 1<<31 - 1, 1<<31 - 1}
	if strings.TrimSpace(*aabb) != "" {
		var err error
		min, max, err = parseAABB(*aabb)
		if err != nil {
			fmt.Fprintln(os.Stderr, "bad -aabb:", err)
			os.Exit(2)
		}
	}

	dir := filepath.Join(*dataDir, "worlds", *worldID, "edits")
	recs, err := readEdits(dir, *sinceTick, *toTick, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read edits:", err)
		os.Exit(1)
	}
	for _, e := range recs {
		printJSON(e)
	}
	fmt.Fprintf(os.Stderr, "edits=%d\n", len(recs))
}

func readEdits(dir string, sinceTick, toTick uint64, min, max [3]int) ([]world.EditEntry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "edits-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out []world.EditEntry
	for _, name := range names {
		path := filepath.Join(dir, name)
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		dec, err := zstd.NewReader(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		sc := bufio.NewScanner(dec)
		sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
		for sc.Scan() {
			var e world.EditEntry
			if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
				dec.Close()
				_ = f.Close()
				return nil, fmt.Errorf("%s: unmarshal: %w", name, err)
			}
			if e.Tick < sinceTick || (toTick != 0 && e.Tick > toTick) {
				continue
			}
			if !withinAABB(e.Pos, min, max) {
				continue
			}
			out = append(out, e)
		}
		err = sc.Err()
		dec.Close()
		_ = f.Close()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseAABB(s string) ([3]int, [3]int, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return [3]int{}, [3]int{}, fmt.Errorf("expected x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return [3]int{}, [3]int{}, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return [3]int{}, [3]int{}, err
	}
	var min, max [3]int
	for i := 0; i < 3; i++ {
		min[i], max[i] = a[i], b[i]
		if min[i] > max[i] {
			min[i], max[i] = max[i], min[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	xs := strings.Split(strings.TrimSpace(s), ",")
	if len(xs) != 3 {
		return [3]int{}, fmt.Errorf("bad vec3 %q", s)
	}
	var out [3]int
	for i, x := range xs {
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return [3]int{}, fmt.Errorf("bad vec3 %q: %w", s, err)
		}
		out[i] = n
	}
	return out, nil
}

func withinAABB(p, min, max [3]int) bool {
	for i := 0; i < 3; i++ {
		if p[i] < min[i] || p[i] > max[i] {
			return false
		}
	}
	return true
}

func printJSON(v any) {
	b, _ := json.Marshal(v)
	fmt.Println(string(b))
}
