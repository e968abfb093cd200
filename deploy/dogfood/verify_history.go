package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// Quick sanity check against a dogfooding daemon's database: confirms
// fetch history is accumulating and learning states are being flushed.
func main() {
	dbPath := flag.String("db", "quotad.db", "path to the daemon's SQLite database")
	flag.Parse()

	db, err := sql.Open("sqlite3", *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	var total int
	if err := db.QueryRow("SELECT count(*) FROM fetch_history").Scan(&total); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("fetch_history rows: %d\n", total)

	rows, err := db.Query("SELECT account_id, count(*), max(fetched_at) FROM fetch_history GROUP BY account_id ORDER BY account_id")
	if err != nil {
		log.Fatal(err)
	}
	defer rows.Close()
	for rows.Next() {
		var account, last string
		var n int
		if err := rows.Scan(&account, &n, &last); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("  %-20s %5d rows, last fetch %s\n", account, n, last)
	}
	if err := rows.Err(); err != nil {
		log.Fatal(err)
	}

	var states int
	if err := db.QueryRow("SELECT count(*) FROM cycle_states").Scan(&states); err != nil {
		log.Fatal(err)
	}
	fmt.Printf("cycle_states rows: %d\n", states)

	if total == 0 {
		log.Fatal("FAIL: no fetch history recorded")
	}
	if states == 0 {
		log.Fatal("FAIL: no learning states flushed")
	}
	fmt.Println("OK")
}
