package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	kind := fs.String("kind", "", "event kind filter (events)")
	cx := fs.Int("cx", 0, "chunk x (chunk)")
	cz := fs.Int("cz", 0, "chunk z (chunk)")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}
	if *limit <= 0 {
		*limit = 20
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "stream.sqlite")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	switch q {
	case "summary":
		rows, err := db.Query(`SELECT kind, COUNT(*), MAX(tick) FROM events GROUP BY kind ORDER BY kind`)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Kind     string `json:"kind"`
				Count    int64  `json:"count"`
				LastTick int64  `json:"last_tick"`
			}
			if err := rows.Scan(&r.Kind, &r.Count, &r.LastTick); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}
		var edits int64
		if err := db.QueryRow(`SELECT COUNT(*) FROM edits`).Scan(&edits); err != nil {
			fail("count edits", err)
		}
		printJSON(map[string]any{"kind": "EDITS", "count": edits})

	case "events":
		query := `SELECT tick,kind,cx,cz,blocks,COALESCE(detail,'') FROM events`
		var qargs []any
		if strings.TrimSpace(*kind) != "" {
			query += ` WHERE kind=?`
			qargs = append(qargs, strings.ToUpper(strings.TrimSpace(*kind)))
		}
		query += ` ORDER BY id DESC LIMIT ?`
		qargs = append(qargs, *limit)
		printEvents(db, query, qargs...)

	case "chunk":
		printEvents(db, `SELECT tick,kind,cx,cz,blocks,COALESCE(detail,'') FROM events WHERE cx=? AND cz=? ORDER BY id DESC LIMIT ?`, *cx, *cz, *limit)

	case "edits":
		rows, err := db.Query(`SELECT seq,tick,action,x,y,z,COALESCE(block,''),patched,dirty FROM edits ORDER BY seq DESC LIMIT ?`, *limit)
		if err != nil {
			fail("query", err)
		}
		defer rows.Close()
		for rows.Next() {
			var r struct {
				Seq     int64  `json:"seq"`
				Tick    int64  `json:"tick"`
				Action  string `json:"action"`
				Pos     [3]int `json:"pos"`
				Block   string `json:"block,omitempty"`
				Patched bool   `json:"patched"`
				Dirty   bool   `json:"dirty"`
			}
			if err := rows.Scan(&r.Seq, &r.Tick, &r.Action, &r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Block, &r.Patched, &r.Dirty); err != nil {
				fail("scan", err)
			}
			printJSON(r)
		}
		if err := rows.Err(); err != nil {
			fail("rows", err)
		}

	case "config":
		var r struct {
			Name      string `json:"name"`
			Digest    string `json:"digest"`
			UpdatedAt string `json:"updated_at"`
			JSON      string `json:"json"`
		}
		row := db.QueryRow(`SELECT name,digest,updated_at,json FROM config WHERE name='tuning'`)
		if err := row.Scan(&r.Name, &r.Digest, &r.UpdatedAt, &r.JSON); err != nil {
			fail("scan", err)
		}
		printJSON(r)

	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q, "(summary|events|chunk|edits|config)")
		os.Exit(2)
	}
}

func printEvents(db *sql.DB, query string, args ...any) {
	rows, err := db.Query(query, args...)
	if err != nil {
		fail("query", err)
	}
	defer rows.Close()
	for rows.Next() {
		var r struct {
			Tick   int64  `json:"tick"`
			Kind   string `json:"kind"`
			CX     int    `json:"cx"`
			CZ     int    `json:"cz"`
			Blocks int    `json:"blocks"`
			Detail string `json:"detail,omitempty"`
		}
		if err := rows.Scan(&r.Tick, &r.Kind, &r.CX, &r.CZ, &r.Blocks, &r.Detail); err != nil {
			fail("scan", err)
		}
		printJSON(r)
	}
	if err := rows.Err(); err != nil {
		fail("rows", err)
	}
}

func fail(what string, err error) {
	fmt.Fprintln(os.Stderr, what+":", err)
	os.Exit(1)
}
