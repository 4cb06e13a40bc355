// Command score runs recorded audio files through the same rejection chain
// and wake-word scorer the live pipeline uses, printing a verdict per file.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/algo-boyz/earshot/pkg/audio"
	"github.com/algo-boyz/earshot/pkg/config"
	"github.com/algo-boyz/earshot/pkg/onnx"
	"github.com/algo-boyz/earshot/pkg/reject"
	"github.com/algo-boyz/earshot/pkg/state"
	"github.com/algo-boyz/earshot/pkg/wakeword"
)

var (
	ctx          = state.NewContext()
	networkPath  string
	metadataPath string
	runtimePath  string
)

func init() {
	flag.StringVar(&networkPath, "model", "model/jarvis/model.onnx", "wake-word .onnx path")
	flag.StringVar(&metadataPath, "metadata", "model/jarvis/metadata.json", "model metadata .json path")
	flag.StringVar(&runtimePath, "runtime", "", "onnxruntime shared library path (fetched when empty)")
}

type clip struct {
	path    string
	samples []int16
	rate    int
}

func main() {
	flag.Parse()
	files := flag.Args()
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "usage: score [-model path] [-metadata path] file.wav [file.mp3 ...]")
		os.Exit(2)
	}
	if err := run(files); err != nil {
		log.Fatal(err)
	}
	ctx.Exit()
}

func run(files []string) error {
	if runtimePath == "" {
		if err := onnx.FetchRuntime(); err != nil {
			return fmt.Errorf("path to onnx runtime is required: %w", err)
		}
		runtimePath = onnx.LibPath()
	}
	meta, err := wakeword.LoadMetadata(metadataPath)
	if err != nil {
		return err
	}
	model, err := wakeword.NewModel(ctx, runtimePath, networkPath, meta)
	if err != nil {
		return err
	}

	// Decode in parallel; the single model session scores sequentially.
	clips := make([]clip, len(files))
	var g errgroup.Group
	g.SetLimit(4)
	for i, path := range files {
		g.Go(func() error {
			samples, rate, err := audio.Load(path)
			if err != nil {
				return err
			}
			clips[i] = clip{path: path, samples: samples, rate: rate}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	rejection := config.Default().Rejection
	for _, c := range clips {
		verdict, err := scoreClip(c, rejection, meta, model)
		if err != nil {
			return fmt.Errorf("%s: %w", c.path, err)
		}
		fmt.Printf("%s: %s\n", c.path, verdict)
	}
	return nil
}

func scoreClip(c clip, rejection config.Rejection, meta wakeword.Metadata, model *wakeword.Model) (string, error) {
	chain, err := reject.NewChain(rejection, c.rate, false)
	if err != nil {
		return "", err
	}
	mono := audio.Resample(audio.ToFloat32(c.samples), c.rate, meta.SampleRate)
	stage, err := chain.Check(reject.Window{Raw: c.samples, Mono: mono, MonoRate: meta.SampleRate})
	if err != nil {
		return "", err
	}
	if stage != reject.StageNone {
		return fmt.Sprintf("rejected (%s)", stage), nil
	}
	extractor := wakeword.NewExtractor(meta, c.rate)
	features, err := extractor.ExtractMono(mono)
	if err != nil {
		return "", err
	}
	confidence, err := model.Score(features)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%.3f", confidence), nil
}
