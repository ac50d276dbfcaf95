package server

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Stats collects the running totals reported by *STATS* and the health
// endpoint.
type Stats struct {
	mu            sync.Mutex
	gamesStarted  int
	gamesFinished int
	versionCounts map[int]int
}

// StatsSnapshot is a point-in-time copy of the counters.
type StatsSnapshot struct {
	GamesStarted   int
	GamesFinished  int
	ClientVersions string
}

func NewStats() *Stats {
	return &Stats{versionCounts: make(map[int]int)}
}

func (st *Stats) RecordGameStarted() {
	st.mu.Lock()
	st.gamesStarted++
	st.mu.Unlock()
}

func (st *Stats) RecordGameFinished() {
	st.mu.Lock()
	st.gamesFinished++
	st.mu.Unlock()
}

// ClientConnected notes a client of the given version. Version 0 (never
// reported, never guessed) is not tracked.
func (st *Stats) ClientConnected(version int) {
	if version == 0 {
		return
	}
	st.mu.Lock()
	st.versionCounts[version]++
	st.mu.Unlock()
}

func (st *Stats) ClientDisconnected(version int) {
	if version == 0 {
		return
	}
	st.mu.Lock()
	if st.versionCounts[version] > 0 {
		st.versionCounts[version]--
		if st.versionCounts[version] == 0 {
			delete(st.versionCounts, version)
		}
	}
	st.mu.Unlock()
}

// Snapshot copies the counters. ClientVersions reads like "1107: 2, 1202: 5".
func (st *Stats) Snapshot() StatsSnapshot {
	st.mu.Lock()
	defer st.mu.Unlock()
	versions := make([]int, 0, len(st.versionCounts))
	for v := range st.versionCounts {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	parts := make([]string, 0, len(versions))
	for _, v := range versions {
		parts = append(parts, fmt.Sprintf("%d: %d", v, st.versionCounts[v]))
	}
	return StatsSnapshot{
		GamesStarted:   st.gamesStarted,
		GamesFinished:  st.gamesFinished,
		ClientVersions: strings.Join(parts, ", "),
	}
}
