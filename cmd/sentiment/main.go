package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"sentiment-backend/internal/core"
	"sentiment-backend/internal/core/types"
)

// Offline CLI for quick classification with the built-in lexicon model.
// No server, database, or queue involved.

func main() {
	var (
		text       string
		file       string
		lexiconDir string
		jsonOut    bool
	)

	flag.StringVar(&text, "text", "", "single text to classify")
	flag.StringVar(&file, "file", "", "batch input file (.csv with a text column, or .jsonl)")
	flag.StringVar(&lexiconDir, "lexicon", "", "directory with a custom lexicon.yaml (optional)")
	flag.BoolVar(&jsonOut, "json", false, "emit JSON instead of human-readable output")
	flag.Parse()

	if (text == "") == (file == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -text or -file is required")
		flag.Usage()
		os.Exit(2)
	}

	model, err := core.LoadLexiconModel(lexiconDir)
	if err != nil {
		log.Fatalf("could not load lexicon model: %v", err)
	}
	defer model.Release()

	if text != "" {
		classifyOne(model, text, jsonOut)
		return
	}

	classifyFile(model, file, jsonOut)
}

type cliResult struct {
	Text            string             `json:"text"`
	SentimentLabel  string             `json:"sentiment_label"`
	Confidence      float64            `json:"confidence"`
	ConfidenceLevel string             `json:"confidence_level"`
	Scores          map[string]float64 `json:"scores"`
	Error           string             `json:"error,omitempty"`
}

func classify(model core.Model, text string) cliResult {
	cleaned, err := core.SanitizeText(text)
	if err != nil {
		return cliResult{Text: text, Error: err.Error()}
	}

	pred, err := model.Predict(context.Background(), cleaned)
	if err != nil {
		return cliResult{Text: cleaned, Error: err.Error()}
	}

	scores := make(map[string]float64, len(pred.Scores))
	for label, score := range pred.Scores {
		scores[string(label)] = score
	}

	return cliResult{
		Text:            cleaned,
		SentimentLabel:  string(pred.Label),
		Confidence:      pred.Confidence,
		ConfidenceLevel: types.ConfidenceLevel(pred.Confidence),
		Scores:          scores,
	}
}

func printResult(res cliResult, jsonOut bool) {
	if jsonOut {
		json.NewEncoder(os.Stdout).Encode(res) //nolint:errcheck
		return
	}
	if res.Error != "" {
		fmt.Printf("error: %s\n", res.Error)
		return
	}
	fmt.Printf("%s (%.2f, %s confidence)\n", res.SentimentLabel, res.Confidence, res.ConfidenceLevel)
}

func classifyOne(model core.Model, text string, jsonOut bool) {
	res := classify(model, text)
	printResult(res, jsonOut)
	if res.Error != "" {
		os.Exit(1)
	}
}

func classifyFile(model core.Model, file string, jsonOut bool) {
	format, err := core.DetectBatchFormat(file)
	if err != nil {
		log.Fatalf("%v", err)
	}

	f, err := os.Open(file)
	if err != nil {
		log.Fatalf("could not open %s: %v", file, err)
	}
	defer f.Close()

	records, err := core.ReadBatchRecords(f, format)
	if err != nil {
		log.Fatalf("could not parse %s: %v", file, err)
	}

	tally := make(map[string]int)
	errored := 0
	for _, record := range records {
		res := classify(model, record)
		printResult(res, jsonOut)
		if res.Error != "" {
			errored++
			continue
		}
		tally[res.SentimentLabel]++
	}

	if !jsonOut {
		fmt.Printf("\n%d texts", len(records))
		for _, label := range types.Labels {
			fmt.Printf(", %d %s", tally[string(label)], label)
		}
		if errored > 0 {
			fmt.Printf(", %d errors", errored)
		}
		fmt.Println()
	}
}
