package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/helgoboss/clipmatrix"
	"github.com/helgoboss/clipmatrix/engine"
	"github.com/helgoboss/clipmatrix/oto"
	"github.com/helgoboss/clipmatrix/rpc"
	"github.com/helgoboss/clipmatrix/version"
)

const blockFrames = 2048

type blockContext interface {
	engine.ProcessContext
	BeginBlock(frames int)
	EndBlock(frames int)
}

// midiContext is what a real MIDI connection adds on top of the processing
// context; the non-cgo build substitutes a null implementation.
type midiContext interface {
	blockContext
	TryToOpenBy(namePrefix string, takeFirst bool)
	OpenFirstOut() error
	Close()
}

type nullContext struct{ engine.NullProcessContext }

func (nullContext) BeginBlock(int) {}
func (nullContext) EndBlock(int)   {}

// engineReader renders the matrix on demand as 16-bit little-endian stereo
// PCM; the audio output pulls from it one block at a time.
type engineReader struct {
	engine *engine.Engine
	ctx    blockContext
	buf    clipmatrix.AudioBuffer
	stash  []byte
	pos    int
}

func newEngineReader(e *engine.Engine, ctx blockContext) *engineReader {
	return &engineReader{
		engine: e,
		ctx:    ctx,
		buf:    make(clipmatrix.AudioBuffer, blockFrames),
		stash:  make([]byte, 0, blockFrames*4),
	}
}

func (r *engineReader) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) {
		if r.pos >= len(r.stash) {
			r.ctx.BeginBlock(len(r.buf))
			r.engine.Process(r.buf, r.ctx)
			r.ctx.EndBlock(len(r.buf))
			r.stash = r.stash[:0]
			for _, frame := range r.buf {
				l := uint16(pcm16(frame[0]))
				rr := uint16(pcm16(frame[1]))
				r.stash = append(r.stash, byte(l), byte(l>>8), byte(rr), byte(rr>>8))
			}
			r.pos = 0
		}
		c := copy(p[n:], r.stash[r.pos:])
		n += c
		r.pos += c
	}
	return n, nil
}

func pcm16(v float32) int16 {
	if v < -1 {
		return -32767
	}
	if v > 1 {
		return 32767
	}
	return int16(v * 32767)
}

func main() {
	help := flag.Bool("h", false, "Show help.")
	scene := flag.Int("scene", 0, "Scene row to launch.")
	seconds := flag.Float64("t", 16, "How many seconds to play or render.")
	wavOut := flag.Bool("w", false, "Render the scene to a .wav file instead of playing it.")
	rawOut := flag.Bool("r", false, "Render the scene to a .raw file instead of playing it.")
	pcm := flag.Bool("c", false, "Convert audio to 16-bit signed PCM when outputting files.")
	directory := flag.String("o", "", "Directory where to output rendered files. By default, the working directory.")
	midiIn := flag.String("midiin", "", "Open the first MIDI input whose name starts with the given prefix.")
	midiOut := flag.Bool("midiout", false, "Send the matrix MIDI output to the first available MIDI output port.")
	monitor := flag.String("monitor", "", "Stream slot statuses to a clipmatrix monitor at the given address.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if flag.NArg() != 1 || *help {
		flag.Usage()
		os.Exit(0)
	}
	filename := flag.Arg(0)
	data, err := os.ReadFile(filename)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not read file %v: %v\n", filename, err)
		os.Exit(1)
	}
	matrix, err := clipmatrix.LoadMatrix(data)
	if err != nil {
		// older first-generation files use the flat layout
		if matrix, err = clipmatrix.ImportLegacyMatrix(data); err != nil {
			fmt.Fprintf(os.Stderr, "could not parse matrix %v: %v\n", filename, err)
			os.Exit(1)
		}
	}
	model, eng, err := engine.New(matrix)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not build engine: %v\n", err)
		os.Exit(1)
	}
	if err := model.PlayScene(*scene); err != nil {
		fmt.Fprintf(os.Stderr, "could not launch scene %d: %v\n", *scene, err)
		os.Exit(1)
	}

	if *wavOut || *rawOut {
		if err := render(filename, matrix, eng, *seconds, *wavOut, *rawOut, *pcm, *directory); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		return
	}

	var ctx blockContext = nullContext{}
	if *midiIn != "" || *midiOut {
		midiCtx := newMidiContext(matrix.SampleRate)
		defer midiCtx.Close()
		if *midiIn != "" {
			midiCtx.TryToOpenBy(*midiIn, false)
		}
		if *midiOut {
			if err := midiCtx.OpenFirstOut(); err != nil {
				fmt.Fprintf(os.Stderr, "MIDI output unavailable: %v\n", err)
			}
		}
		ctx = midiCtx
	}

	var statuses chan<- []engine.SlotStatus
	if *monitor != "" {
		statuses, err = rpc.Sender(*monitor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "could not connect to monitor: %v\n", err)
			os.Exit(1)
		}
	}

	audioContext, err := oto.NewContext(matrix.SampleRate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not acquire oto audio context: %v\n", err)
		os.Exit(1)
	}
	defer audioContext.Close()
	playWaiter := audioContext.Play(newEngineReader(eng, ctx))

	deadline := time.After(time.Duration(*seconds * float64(time.Second)))
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			model.Update()
			if statuses != nil {
				snapshot := make([]engine.SlotStatus, 0, matrix.Rows*len(matrix.Columns))
				for col := range matrix.Columns {
					for row := 0; row < matrix.Rows; row++ {
						snapshot = append(snapshot, model.StatusAt(col, row))
					}
				}
				select {
				case statuses <- snapshot:
				default:
				}
			}
		case <-deadline:
			model.StopAll()
			model.Update()
			time.Sleep(500 * time.Millisecond)
			playWaiter.Close()
			return
		}
	}
}

// render plays the scene offline for the given duration and writes the mix
// to disk.
func render(filename string, matrix *clipmatrix.Matrix, eng *engine.Engine, seconds float64, wavOut, rawOut, pcm bool, directory string) error {
	total := int(seconds * float64(matrix.SampleRate))
	buffer := make(clipmatrix.AudioBuffer, total)
	for off := 0; off < total; off += blockFrames {
		end := off + blockFrames
		if end > total {
			end = total
		}
		eng.Process(buffer[off:end], engine.NullProcessContext{})
	}
	output := func(extension string, contents []byte) error {
		_, name := filepath.Split(filename)
		dir := directory
		if dir == "" {
			var err error
			dir, err = os.Getwd()
			if err != nil {
				return fmt.Errorf("could not get working directory, specify the output directory explicitly: %v", err)
			}
		}
		name = strings.TrimSuffix(name, filepath.Ext(name)) + extension
		f := filepath.Join(dir, name)
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			return fmt.Errorf("could not create output directory %v: %v", dir, err)
		}
		if err := os.WriteFile(f, contents, 0644); err != nil {
			return fmt.Errorf("could not write file %v: %v", f, err)
		}
		return nil
	}
	if rawOut {
		raw, err := buffer.Raw(pcm)
		if err != nil {
			return fmt.Errorf("could not generate .raw file: %v", err)
		}
		if err := output(".raw", raw); err != nil {
			return fmt.Errorf("error outputting .raw file: %v", err)
		}
	}
	if wavOut {
		wav, err := buffer.Wav(matrix.SampleRate, pcm)
		if err != nil {
			return fmt.Errorf("could not generate .wav file: %v", err)
		}
		if err := output(".wav", wav); err != nil {
			return fmt.Errorf("error outputting .wav file: %v", err)
		}
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Clipmatrix command line utility for playing .yml/.json matrix files.\nUsage: %s [flags] path\n", os.Args[0])
	flag.PrintDefaults()
}
