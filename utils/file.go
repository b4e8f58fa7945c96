package utils

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ReadPromptsFromFile reads one prompt per line. Files ending in .jsonl
// hold JSON objects; the "prompt" field is used, then "text". Blank lines
// are skipped.
func ReadPromptsFromFile(filename string) ([]string, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	jsonLines := strings.HasSuffix(filename, ".jsonl")
	var prompts []string
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !jsonLines {
			prompts = append(prompts, line)
			continue
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(line), &data); err != nil {
			return nil, fmt.Errorf("failed to parse JSON line %d: %w", lineNo, err)
		}
		if text, ok := data["prompt"].(string); ok && text != "" {
			prompts = append(prompts, text)
		} else if text, ok := data["text"].(string); ok && text != "" {
			prompts = append(prompts, text)
		} else {
			return nil, fmt.Errorf("line %d has no prompt field", lineNo)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading file: %w", err)
	}

	return prompts, nil
}
