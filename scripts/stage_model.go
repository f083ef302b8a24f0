//go:build ignore

package main

import (
	"flag"
	"os"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-nock/internal/bridge"
	"github.com/23skdu/longbow-nock/internal/native"
)

// Stages a saved model bundle that nock can load:
//
//	go run scripts/stage_model.go -dir ./model -tags serve
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	dir := flag.String("dir", "model", "Directory to stage the bundle in")
	tags := flag.String("tags", "serve", "Comma separated tag set")
	signature := flag.String("signature", "serving_default", "Signature name")
	method := flag.String("method", "predict", "Signature method name")
	inputName := flag.String("input", "input_x", "Input tensor name")
	inputShape := flag.String("input-shape", "-1,3", "Input tensor shape")
	outputName := flag.String("output", "output_y", "Output tensor name")
	outputShape := flag.String("output-shape", "-1,2", "Output tensor shape")
	flag.Parse()

	m := native.Manifest{
		Tags: bridge.Split(*tags),
		Signatures: map[string]native.Signature{
			*signature: {
				MethodName: *method,
				Inputs: map[string]native.TensorInfo{
					"x": {Name: *inputName, DType: native.Int32, Shape: parseShape(*inputShape)},
				},
				Outputs: map[string]native.TensorInfo{
					"y": {Name: *outputName, DType: native.Int32, Shape: parseShape(*outputShape)},
				},
			},
		},
	}

	if err := native.WriteManifest(*dir, m); err != nil {
		log.Fatal().Err(err).Msg("Failed to write manifest")
	}
	log.Info().Str("dir", *dir).Str("tags", *tags).Msg("Staged saved model bundle")
}

func parseShape(s string) []int64 {
	parts := bridge.Split(s)
	dims := make([]int64, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			log.Fatal().Str("dim", p).Msg("Bad shape dim")
		}
		dims = append(dims, d)
	}
	return dims
}
