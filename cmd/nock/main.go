package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-nock/internal/bridge"
	"github.com/23skdu/longbow-nock/internal/savedmodel"
)

var (
	modelPath   = flag.String("model", "", "Path to a saved model directory")
	modelTags   = flag.String("tags", "serve", "Comma separated tags the loaded graph must carry")
	signature   = flag.String("signature", "serving_default", "Signature to run")
	inputKey    = flag.String("input", "", "Input key to feed (defaults to the signature's sole input)")
	shapeFlag   = flag.String("shape", "", "Comma separated feed tensor shape, e.g. 1,3")
	valuesFlag  = flag.String("values", "", "Comma separated int32 values to feed")
	duration    = flag.Duration("duration", 0, "Run a soak loop for the given duration (e.g. 10s, 20m)")
	listenAddr  = flag.String("listen", "", "Address to serve /metrics and /health on (e.g. :8080)")
	cpuProfile  = flag.String("cpuprofile", "", "Write cpu profile to file")
	enableOTel  = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	showVersion = flag.Bool("version", false, "Print the runtime version and exit")
)

func parseDims(s string) ([]int64, error) {
	parts := bridge.Split(s)
	dims := make([]int64, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad dim %q: %w", p, err)
		}
		dims = append(dims, d)
	}
	return dims, nil
}

func parseValues(s string) ([]int32, error) {
	parts := bridge.Split(s)
	values := make([]int32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("bad value %q: %w", p, err)
		}
		values = append(values, int32(v))
	}
	return values, nil
}

func main() {
	// Initialize logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	store := savedmodel.NewMapRegistry()
	d, err := newDriver(store)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to install saved model binding")
	}

	if *showVersion {
		v, err := d.version()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read runtime version")
		}
		fmt.Println(v)
		return
	}

	if *listenAddr != "" {
		go startServer(*listenAddr, store)
	}

	if *modelPath == "" && *valuesFlag == "" {
		if *listenAddr != "" {
			select {}
		}
		flag.Usage()
		os.Exit(2)
	}

	if *modelPath == "" {
		if err := smokeTensor(d, *shapeFlag, *valuesFlag); err != nil {
			log.Fatal().Err(err).Msg("Tensor smoke run failed")
		}
		if *listenAddr != "" {
			select {}
		}
		return
	}

	model, err := d.loadModel(*modelPath, *modelTags)
	if err != nil {
		log.Fatal().Err(err).Str("path", *modelPath).Msg("Failed to load saved model")
	}

	if *valuesFlag == "" {
		count, err := d.modelCount()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to read model count")
		}
		log.Info().Int("loaded", count).Msg("Model loaded; pass -values to run it")
		if *listenAddr != "" {
			select {}
		}
		return
	}

	dims, err := parseDims(*shapeFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -shape")
	}
	values, err := parseValues(*valuesFlag)
	if err != nil {
		log.Fatal().Err(err).Msg("Bad -values")
	}

	key := *inputKey
	if key == "" {
		key, err = d.soleInputKey(model, *signature)
		if err != nil {
			log.Fatal().Err(err).Msg("Cannot pick an input key")
		}
	}

	tensor, err := d.buildTensor(dims, values)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create feed tensor")
	}

	if *duration > 0 {
		log.Info().Str("duration", duration.String()).Msg("Starting soak loop")

		startTime := time.Now()
		endTime := startTime.Add(*duration)
		var totalRuns int64

		for time.Now().Before(endTime) {
			if _, err := d.runOnce(model, *signature, key, tensor); err != nil {
				log.Fatal().Err(err).Msg("Soak run failed")
			}
			totalRuns++

			if totalRuns%100 == 0 {
				elapsed := time.Since(startTime)
				log.Info().
					Str("elapsed", elapsed.Round(time.Second).String()).
					Int64("total_runs", totalRuns).
					Float64("rps", float64(totalRuns)/elapsed.Seconds()).
					Msg("Soak progress")
			}
		}

		totalElapsed := time.Since(startTime)
		log.Info().
			Int64("total_runs", totalRuns).
			Dur("total_time", totalElapsed).
			Float64("avg_rps", float64(totalRuns)/totalElapsed.Seconds()).
			Msg("Soak complete")

		if _, err := d.call("deleteTensor", tensor); err != nil {
			log.Warn().Err(err).Msg("Failed to release feed tensor")
		}
		if err := d.deleteModel(model); err != nil {
			log.Warn().Err(err).Msg("Failed to delete saved model")
		}
		return
	}

	start := time.Now()
	results, err := d.runOnce(model, *signature, key, tensor)
	if err != nil {
		log.Fatal().Err(err).Str("signature", *signature).Msg("Run failed")
	}
	elapsed := time.Since(start)

	log.Info().
		Str("signature", *signature).
		Int("outputs", len(results)).
		Dur("elapsed", elapsed).
		Msg("Ran saved model")

	if _, err := d.call("deleteTensor", tensor); err != nil {
		log.Warn().Err(err).Msg("Failed to release feed tensor")
	}
	if err := d.deleteModel(model); err != nil {
		log.Warn().Err(err).Msg("Failed to delete saved model")
	}

	// Write results to Arrow IPC on stdout
	if err := writeArrowStream(os.Stdout, results); err != nil {
		log.Warn().Err(err).Msg("Failed to write arrow stream")
	}

	if *listenAddr != "" {
		select {}
	}
}

// smokeTensor drives the tensor constructors without a model: build a
// tensor from -shape/-values, read it back through the installed API,
// and echo it as an Arrow stream.
func smokeTensor(d *driver, shape, values string) error {
	dims, err := parseDims(shape)
	if err != nil {
		return fmt.Errorf("bad -shape: %w", err)
	}
	ints, err := parseValues(values)
	if err != nil {
		return fmt.Errorf("bad -values: %w", err)
	}

	tensor, err := d.buildTensor(dims, ints)
	if err != nil {
		return err
	}
	res, err := d.readTensor("tensor", tensor)
	if err != nil {
		return err
	}
	if _, err := d.call("deleteTensor", tensor); err != nil {
		return err
	}

	log.Info().
		Ints64("shape", res.Dims).
		Int("elements", len(res.Values)).
		Msg("Tensor roundtrip complete")

	return writeArrowStream(os.Stdout, []tensorResult{res})
}

func writeArrowStream(w *os.File, results []tensorResult) error {
	pool := memory.NewGoAllocator()

	// Schema: { "output": utf8, "shape": list<int64>, "values": list<int32> }
	schema := arrow.NewSchema(
		[]arrow.Field{
			{Name: "output", Type: arrow.BinaryTypes.String},
			{Name: "shape", Type: arrow.ListOf(arrow.PrimitiveTypes.Int64)},
			{Name: "values", Type: arrow.ListOf(arrow.PrimitiveTypes.Int32)},
		},
		nil,
	)

	nameBuilder := array.NewStringBuilder(pool)
	defer nameBuilder.Release()

	shapeBuilder := array.NewListBuilder(pool, arrow.PrimitiveTypes.Int64)
	defer shapeBuilder.Release()
	dimBuilder := shapeBuilder.ValueBuilder().(*array.Int64Builder)

	valuesBuilder := array.NewListBuilder(pool, arrow.PrimitiveTypes.Int32)
	defer valuesBuilder.Release()
	intBuilder := valuesBuilder.ValueBuilder().(*array.Int32Builder)

	for _, res := range results {
		nameBuilder.Append(res.Key)
		shapeBuilder.Append(true)
		dimBuilder.AppendValues(res.Dims, nil)
		valuesBuilder.Append(true)
		intBuilder.AppendValues(res.Values, nil)
	}

	nameArr := nameBuilder.NewArray()
	defer nameArr.Release()
	shapeArr := shapeBuilder.NewArray()
	defer shapeArr.Release()
	valuesArr := valuesBuilder.NewArray()
	defer valuesArr.Release()

	rec := array.NewRecordBatch(schema, []arrow.Array{nameArr, shapeArr, valuesArr}, int64(len(results)))
	defer rec.Release()

	writer := ipc.NewWriter(w, ipc.WithSchema(rec.Schema()))
	if err := writer.Write(rec); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("nock"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
