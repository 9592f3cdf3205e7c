//go:build ignore

// Generates a synthetic patent-examination corpus in the JSONL format
// accepted by `patrag index`, for benchmarking index builds and query
// latency at sizes the real corpus does not cover.
//
// Usage: go run scripts/generate-test-corpus.go -chunks 10000 -output testdata/bench.jsonl
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
)

var (
	numChunks = flag.Int("chunks", 10000, "Number of chunks to generate")
	output    = flag.String("output", "testdata/bench.jsonl", "Output JSONL file")
	seed      = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var sections = []string{
	"MPEP 608.01(b)", "MPEP 608.02", "MPEP 2111", "MPEP 2111.01",
	"MPEP 2131", "MPEP 2141", "MPEP 2163", "MPEP 2164", "MPEP 2173.05(e)",
	"MPEP 706.02", "MPEP 714", "MPEP 1207", "37 CFR 1.72", "37 CFR 1.75",
	"35 U.S.C. 101", "35 U.S.C. 102", "35 U.S.C. 103", "35 U.S.C. 112",
}

var subjects = []string{
	"the abstract of the disclosure", "the claimed invention",
	"a dependent claim", "an independent claim", "the written description",
	"the drawings", "the specification", "a means-plus-function limitation",
	"the priority claim", "an amendment after final rejection",
	"a terminal disclaimer", "the information disclosure statement",
}

var predicates = []string{
	"must be supported by the original disclosure as filed",
	"is given its broadest reasonable interpretation consistent with the specification",
	"may not exceed the statutory word limit",
	"shall particularly point out and distinctly claim the subject matter",
	"must enable a person of ordinary skill in the art to make and use the invention",
	"is rejected as anticipated by the cited reference",
	"is obvious over the combination of the applied references",
	"requires an antecedent basis for each limitation",
	"must be filed within the statutory period to avoid abandonment",
	"is entered as a matter of right before the first office action",
}

var qualifiers = []string{
	"absent a showing of unexpected results",
	"unless the applicant traverses the finding with evidence",
	"subject to the examiner's discretion",
	"in accordance with the applicable regulations",
	"as interpreted by the reviewing courts",
	"notwithstanding any statement to the contrary in the remarks",
}

type chunkRecord struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Section string `json:"section"`
	Page    int    `json:"page"`
}

func sentence(rng *rand.Rand) string {
	s := fmt.Sprintf("%s %s, %s.",
		subjects[rng.Intn(len(subjects))],
		predicates[rng.Intn(len(predicates))],
		qualifiers[rng.Intn(len(qualifiers))])
	return string(s[0]-32) + s[1:]
}

func main() {
	flag.Parse()
	rng := rand.New(rand.NewSource(*seed))

	f, err := os.Create(*output)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := 0; i < *numChunks; i++ {
		text := ""
		for s := 0; s < 3+rng.Intn(4); s++ {
			if s > 0 {
				text += " "
			}
			text += sentence(rng)
		}
		rec := chunkRecord{
			ID:      fmt.Sprintf("bench-%06d", i),
			Text:    text,
			Section: sections[rng.Intn(len(sections))],
			Page:    1 + rng.Intn(1200),
		}
		if err := enc.Encode(rec); err != nil {
			fmt.Fprintf(os.Stderr, "encode chunk %d: %v\n", i, err)
			os.Exit(1)
		}
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "flush: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d chunks to %s\n", *numChunks, *output)
}
