package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/therealutkarshpriyadarshi/ivfgrid/internal/vecmath"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/ivf"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/matrix"
	"github.com/therealutkarshpriyadarshi/ivfgrid/pkg/store"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	switch command := os.Args[1]; command {
	case "train":
		handleTrain(os.Args[2:])
	case "build":
		handleBuild(os.Args[2:])
	case "query":
		handleQuery(os.Args[2:])
	case "stats":
		handleStats(os.Args[2:])
	case "version":
		fmt.Printf("ivfgrid version %s\n", version)
	case "help", "-h", "--help":
		showUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		showUsage()
		os.Exit(1)
	}
}

func handleTrain(args []string) {
	fs := flag.NewFlagSet("train", flag.ExitOnError)
	var (
		dataDir      = fs.String("data", "./data", "local store directory")
		dbURI        = fs.String("db", "db", "source vector array")
		centroidsURI = fs.String("centroids", "centroids", "output centroid array")
		numParts     = fs.Int("partitions", 16, "number of partitions to train")
		iterations   = fs.Int("iterations", 25, "k-means iterations")
		seed         = fs.Int64("seed", 1, "training random seed")
	)
	fs.Parse(args)

	ctx := context.Background()
	s := store.NewLocalStore(*dataDir)

	db, err := store.ReadMatrix[float32](ctx, s, *dbURI)
	if err != nil {
		fatal("load %s: %v", *dbURI, err)
	}

	cfg := vecmath.DefaultKMeansConfig()
	cfg.NumIterations = *iterations
	cfg.RandomSeed = *seed
	centroids, err := vecmath.KMeansPlusPlus(db, *numParts, cfg)
	if err != nil {
		fatal("train: %v", err)
	}

	if err := store.WriteMatrix(ctx, s, *centroidsURI, centroids, 0, true, ""); err != nil {
		fatal("write %s: %v", *centroidsURI, err)
	}
	fmt.Printf("Trained %d centroids over %d vectors\n", *numParts, db.Cols())
}

func handleBuild(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	var (
		dataDir      = fs.String("data", "./data", "local store directory")
		dbURI        = fs.String("db", "db", "source vector array")
		centroidsURI = fs.String("centroids", "centroids", "centroid array")
		partsURI     = fs.String("parts", "parts", "output shuffled vector array")
		indexURI     = fs.String("index", "index", "output offset array")
		idURI        = fs.String("ids", "ids", "output id array")
		startPos     = fs.Int("start", 0, "first source column")
		endPos       = fs.Int("end", 0, "end of source column range (0 = all)")
		nthreads     = fs.Int("threads", 0, "assignment workers (0 = all CPUs)")
		compression  = fs.String("compression", "", "parts compression (lz4)")
	)
	fs.Parse(args)

	ctx := context.Background()
	s := store.NewLocalStore(*dataDir)

	cfg := ivf.BuildConfig{
		CentroidsURI: *centroidsURI,
		PartsURI:     *partsURI,
		IndexURI:     *indexURI,
		IDURI:        *idURI,
		StartPos:     *startPos,
		EndPos:       *endPos,
		Nthreads:     *nthreads,
		Create:       *startPos == 0,
		Compression:  *compression,
	}
	if err := ivf.BuildIndexFromURI[float32](ctx, s, *dbURI, cfg); err != nil {
		fatal("build: %v", err)
	}
	fmt.Println("Index built")
}

func handleQuery(args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	var (
		dataDir      = fs.String("data", "./data", "local store directory")
		centroidsURI = fs.String("centroids", "centroids", "centroid array")
		partsURI     = fs.String("parts", "parts", "shuffled vector array")
		indexURI     = fs.String("index", "index", "offset array")
		idURI        = fs.String("ids", "ids", "id array")
		queryStr     = fs.String("vectors", "", "query vectors as JSON array of arrays (required)")
		nprobe       = fs.Int("nprobe", 8, "partitions probed per query")
		k            = fs.Int("k", 10, "neighbors per query")
		nthreads     = fs.Int("threads", 0, "workers per node (0 = all CPUs)")
		numNodes     = fs.Int("nodes", 1, "simulated compute nodes")
	)
	fs.Parse(args)

	if *queryStr == "" {
		fatal("query: -vectors is required")
	}
	var cols [][]float32
	if err := json.Unmarshal([]byte(*queryStr), &cols); err != nil {
		fatal("query: parse -vectors: %v", err)
	}
	queries, err := matrix.FromColumns(cols)
	if err != nil {
		fatal("query: %v", err)
	}

	ctx := context.Background()
	s := store.NewLocalStore(*dataDir)

	ix, err := ivf.OpenIndex[float32](ctx, ivf.IndexConfig{
		Store:    s,
		PartsURI: *partsURI,
		IDURI:    *idURI,
	}, *centroidsURI, *indexURI)
	if err != nil {
		fatal("open index: %v", err)
	}

	topK, err := ix.Search(ctx, queries, ivf.SearchParams{
		Nprobe:   *nprobe,
		K:        *k,
		Nthreads: *nthreads,
		NumNodes: *numNodes,
	})
	if err != nil {
		fatal("search: %v", err)
	}

	out := make([][]uint64, topK.Cols())
	for q := range out {
		col := topK.Col(q)
		ids := make([]uint64, 0, len(col))
		for _, id := range col {
			if id == ivf.Sentinel {
				break
			}
			ids = append(ids, id)
		}
		out[q] = ids
	}
	enc := json.NewEncoder(os.Stdout)
	enc.Encode(map[string]interface{}{"ids": out})
}

func handleStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	var (
		dataDir      = fs.String("data", "./data", "local store directory")
		centroidsURI = fs.String("centroids", "centroids", "centroid array")
		indexURI     = fs.String("index", "index", "offset array")
	)
	fs.Parse(args)

	ctx := context.Background()
	s := store.NewLocalStore(*dataDir)

	indices, err := store.ReadVector[uint64](ctx, s, *indexURI)
	if err != nil {
		fatal("read %s: %v", *indexURI, err)
	}
	centroids, err := store.ReadMatrix[float32](ctx, s, *centroidsURI)
	if err != nil {
		fatal("read %s: %v", *centroidsURI, err)
	}

	numParts := centroids.Cols()
	total := indices[numParts] - indices[0]
	minSize, maxSize := total, uint64(0)
	empty := 0
	for c := 0; c < numParts; c++ {
		size := indices[c+1] - indices[c]
		if size == 0 {
			empty++
		}
		if size < minSize {
			minSize = size
		}
		if size > maxSize {
			maxSize = size
		}
	}

	fmt.Printf("dimension:        %d\n", centroids.Rows())
	fmt.Printf("partitions:       %d\n", numParts)
	fmt.Printf("vectors:          %d\n", total)
	fmt.Printf("empty partitions: %d\n", empty)
	fmt.Printf("partition sizes:  min %d, max %d, mean %.1f\n",
		minSize, maxSize, float64(total)/float64(numParts))
}

func fatal(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func showUsage() {
	fmt.Println(`ivfgrid - distributed IVF vector search

Usage: ivfgrid <command> [flags]

Commands:
  train    Train partition centroids over a source array (k-means++)
  build    Assign, shuffle and persist the IVF index
  query    Run a top-k query batch against a built index
  stats    Print partition statistics for a built index
  version  Print the version
  help     Show this message

Run 'ivfgrid <command> -h' for command flags.`)
}
