package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

// probeInput is a face given on the command line either as a vector or as a photograph.
type probeInput struct {
	Embedding []float32
	Image     []byte
}

// addProbeFlags registers the flags read by readProbe.
func addProbeFlags(cmd *cobra.Command) {
	cmd.Flags().String("image", "", "Path to a photograph with exactly one face")
	cmd.Flags().String("embedding", "", "Comma-separated embedding vector")
	cmd.Flags().String("embedding-file", "", "Path to a JSON array holding the embedding vector")
}

// readProbe resolves exactly one of --image, --embedding and --embedding-file.
func readProbe(cmd *cobra.Command) (probeInput, error) {
	imagePath := mustGetString(cmd, "image")
	inline := mustGetString(cmd, "embedding")
	file := mustGetString(cmd, "embedding-file")

	set := 0
	for _, v := range []string{imagePath, inline, file} {
		if v != "" {
			set++
		}
	}
	if set != 1 {
		return probeInput{}, errors.New("exactly one of --image, --embedding or --embedding-file is required")
	}

	switch {
	case imagePath != "":
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return probeInput{}, fmt.Errorf("failed to read image: %w", err)
		}
		return probeInput{Image: data}, nil
	case inline != "":
		vec, err := parseEmbedding(inline)
		if err != nil {
			return probeInput{}, err
		}
		return probeInput{Embedding: vec}, nil
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return probeInput{}, fmt.Errorf("failed to read embedding file: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal(data, &vec); err != nil {
			return probeInput{}, fmt.Errorf("failed to parse embedding file: %w", err)
		}
		return probeInput{Embedding: vec}, nil
	}
}

// parseEmbedding parses a comma-separated list of floats.
func parseEmbedding(s string) ([]float32, error) {
	parts := strings.Split(s, ",")
	vec := make([]float32, 0, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return nil, fmt.Errorf("embedding component %d: %w", i, err)
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
