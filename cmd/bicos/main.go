// Command bicos computes a stereo disparity map from two directories of
// temporally-ordered, binary-coded structured-light frames.
package main

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"sort"

	"github.com/charmbracelet/log"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/JMUWRobotics/bicos"
)

/*------------------------------------------------------------------
 *
 * Purpose:	CLI front-end for the bicos package.
 *
 * Inputs:	Two directories of same-sized 8-bit PNG/JPEG frames, one
 *		per camera view, named so lexicographic sort order is
 *		temporal order.
 *
 * Outputs:	A 16-bit grayscale PNG disparity map, or, when --step is
 *		given, an 8-bit normalised preview PNG of the subpixel map;
 *		the raw float32 values are not written to any file.
 *
 * Description:	Flag set and semantics follow the original cli.cpp:
 *		--mode, --threshold, --step, --max-lr-diff, --no-dupes,
 *		--outfile, and an optional --config YAML file for
 *		scripted runs. Positional arguments are folder0 and,
 *		optionally, folder1; a single folder is split into "L"/"R"
 *		subdirectories, matching the original's convenience mode.
 *
 *------------------------------------------------------------------*/

// fileConfig mirrors the subset of Config a --config YAML file may set,
// grounded on deviceid.go's pattern of an optional YAML side-file read.
type fileConfig struct {
	Mode        string   `yaml:"mode"`
	Threshold   *float64 `yaml:"threshold"`
	Step        *float64 `yaml:"step"`
	MaxLRDiff   *uint16  `yaml:"max_lr_diff"`
	NoDupes     *bool    `yaml:"no_dupes"`
	MinVariance *float64 `yaml:"min_variance"`
	WantCorrMap bool     `yaml:"want_corr_map"`
}

func main() {
	var (
		mode        = pflag.StringP("mode", "m", "limited", "Descriptor mode: full or limited")
		threshold   = pflag.Float64P("threshold", "t", 0, "NXC agreement threshold in [-1,1]; 0 disables NXC")
		enableNXC   = pflag.Bool("nxc", false, "Enable NXC agreement even with threshold 0")
		step        = pflag.Float64P("step", "s", 0, "Subpixel refinement step in (0,1]; 0 disables subpixel")
		maxLRDiff   = pflag.Uint16P("max-lr-diff", "l", 0, "Max left-right disparity difference for the consistency check")
		noConsist   = pflag.Bool("no-consistency", false, "Disable the left-right consistency check")
		noDupes     = pflag.Bool("no-dupes", true, "Reject duplicate-minimum matches")
		minVariance = pflag.Float64("min-variance", -1, "Minimum per-channel variance for NXC agreement; negative disables")
		wantCorr    = pflag.Bool("corr-map", false, "Also write the NXC correlation map")
		outfile     = pflag.StringP("outfile", "o", "disparity.png", "Output disparity map path")
		configPath  = pflag.String("config", "", "Optional YAML file overriding the flags above")
		verbose     = pflag.BoolP("verbose", "v", false, "Enable debug logging")
		help        = pflag.Bool("help", false, "Display help text")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: bicos [flags] folder0 [folder1]\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		return
	}

	if *verbose {
		bicos.EnableDebugLog()
	}
	logger := log.NewWithOptions(os.Stderr, log.Options{Prefix: "bicos"})

	fc := fileConfig{Mode: *mode, Threshold: threshold, Step: step, MaxLRDiff: maxLRDiff, NoDupes: noDupes, MinVariance: minVariance, WantCorrMap: *wantCorr}
	if *configPath != "" {
		if err := loadFileConfig(*configPath, &fc); err != nil {
			logger.Fatal("reading config", "path", *configPath, "err", err)
		}
	}

	folder0, folder1, err := resolveFolders(pflag.Args())
	if err != nil {
		pflag.Usage()
		logger.Fatal(err)
	}

	cfg, err := buildConfig(fc, *enableNXC, *noConsist)
	if err != nil {
		logger.Fatal("invalid configuration", "err", err)
	}

	stack0, stack1, err := loadStacks(folder0, folder1)
	if err != nil {
		logger.Fatal("loading stacks", "err", err)
	}

	logger.Info("matching", "frames", stack0.N, "width", stack0.Width, "height", stack0.Height, "mode", fc.Mode)

	result, err := bicos.Match(stack0, stack1, cfg)
	if err != nil {
		logger.Fatal("match failed", "err", err)
	}

	if err := writeResult(result, *outfile); err != nil {
		logger.Fatal("writing result", "err", err)
	}

	logger.Info("done", "outfile", *outfile)
}

func resolveFolders(args []string) (string, string, error) {
	switch len(args) {
	case 1:
		return filepath.Join(args[0], "L"), filepath.Join(args[0], "R"), nil
	case 2:
		return args[0], args[1], nil
	default:
		return "", "", fmt.Errorf("expected 1 or 2 positional folder arguments, got %d", len(args))
	}
}

func loadFileConfig(path string, fc *fileConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, fc)
}

func buildConfig(fc fileConfig, enableNXC, noConsist bool) (bicos.Config, error) {
	var mode bicos.Mode
	switch fc.Mode {
	case "full":
		mode = bicos.Full
	case "limited", "":
		mode = bicos.Limited
	default:
		return bicos.Config{}, fmt.Errorf("unknown mode %q, want full or limited", fc.Mode)
	}

	noDupes := true
	if fc.NoDupes != nil {
		noDupes = *fc.NoDupes
	}

	var variant bicos.Variant
	if noConsist || fc.MaxLRDiff == nil {
		variant = bicos.NoConsistency{NoDupes: noDupes}
	} else {
		variant = bicos.Consistency{MaxLRDiff: *fc.MaxLRDiff, NoDupes: noDupes}
	}

	cfg := bicos.Config{Mode: mode, Variant: variant, WantCorrMap: fc.WantCorrMap}

	nxcWanted := enableNXC || (fc.Threshold != nil && *fc.Threshold != 0)
	if nxcWanted {
		t := 0.0
		if fc.Threshold != nil {
			t = *fc.Threshold
		}
		cfg.NXCorrThreshold = &t
		if fc.Step != nil && *fc.Step > 0 {
			cfg.SubpixelStep = fc.Step
		}
		if fc.MinVariance != nil && *fc.MinVariance >= 0 {
			cfg.MinVariance = fc.MinVariance
		}
	}

	return cfg, nil
}

// loadStacks reads every frame from folder0/folder1 (sorted
// lexicographically, which is temporal order by the naming convention
// this CLI expects) into two 8-bit pixel stacks.
func loadStacks(folder0, folder1 string) (bicos.Stack[uint8], bicos.Stack[uint8], error) {
	files0, err := sortedImageFiles(folder0)
	if err != nil {
		return bicos.Stack[uint8]{}, bicos.Stack[uint8]{}, err
	}
	files1, err := sortedImageFiles(folder1)
	if err != nil {
		return bicos.Stack[uint8]{}, bicos.Stack[uint8]{}, err
	}
	if len(files0) != len(files1) {
		return bicos.Stack[uint8]{}, bicos.Stack[uint8]{}, fmt.Errorf("folder0 has %d frames, folder1 has %d", len(files0), len(files1))
	}
	if len(files0) == 0 {
		return bicos.Stack[uint8]{}, bicos.Stack[uint8]{}, fmt.Errorf("no frames found in %s", folder0)
	}

	width, height, err := peekDimensions(files0[0])
	if err != nil {
		return bicos.Stack[uint8]{}, bicos.Stack[uint8]{}, err
	}

	s0 := bicos.NewStack[uint8](width, height, len(files0))
	s1 := bicos.NewStack[uint8](width, height, len(files1))

	if err := fillStack(&s0, files0); err != nil {
		return bicos.Stack[uint8]{}, bicos.Stack[uint8]{}, err
	}
	if err := fillStack(&s1, files1); err != nil {
		return bicos.Stack[uint8]{}, bicos.Stack[uint8]{}, err
	}

	return s0, s1, nil
}

func sortedImageFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func peekDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

func fillStack(s *bicos.Stack[uint8], files []string) error {
	for k, path := range files {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		img, _, err := image.Decode(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("decoding %s: %w", path, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != s.Width || bounds.Dy() != s.Height {
			return fmt.Errorf("%s is %dx%d, expected %dx%d", path, bounds.Dx(), bounds.Dy(), s.Width, s.Height)
		}
		frame := s.Frame(k)
		gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		for y := 0; y < bounds.Dy(); y++ {
			for x := 0; x < bounds.Dx(); x++ {
				gray.Set(x, y, img.At(bounds.Min.X+x, bounds.Min.Y+y))
			}
		}
		copy(frame, gray.Pix)
	}
	return nil
}

func writeResult(result bicos.Result, outfile string) error {
	if result.HasFloat {
		if err := writeFloatPreview(result.Float, outfile); err != nil {
			return err
		}
	} else {
		if err := writeIntPNG(result.Int, outfile); err != nil {
			return err
		}
	}

	if result.HasCorr {
		return writeCorrPreview(result.Corr, corrMapPath(outfile))
	}
	return nil
}

func corrMapPath(outfile string) string {
	ext := filepath.Ext(outfile)
	return outfile[:len(outfile)-len(ext)] + ".corr" + ext
}

// writeIntPNG writes a 16-bit grayscale PNG, biasing disparities by
// InvalidDisp's magnitude so the unsigned PNG format can hold them.
func writeIntPNG(m bicos.IntDispMap, path string) error {
	img := image.NewGray16(image.Rect(0, 0, m.Width, m.Height))
	for r := 0; r < m.Height; r++ {
		for c := 0; c < m.Width; c++ {
			v := m.At(r, c)
			biased := uint16(int32(v) - int32(bicos.InvalidDisp))
			i := img.PixOffset(c, r)
			img.Pix[i] = byte(biased >> 8)
			img.Pix[i+1] = byte(biased)
		}
	}
	return writePNG(img, path)
}

// writeFloatPreview writes an 8-bit normalised preview PNG; the
// raw float32 values are out of scope for the PNG container and are
// not losslessly recoverable from it.
func writeFloatPreview(m bicos.FloatDispMap, path string) error {
	min, max := float32(0), float32(0)
	first := true
	for _, v := range m.Data {
		if v != v { // NaN
			continue
		}
		if first || v < min {
			min = v
		}
		if first || v > max {
			max = v
		}
		first = false
	}

	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	span := max - min
	for r := 0; r < m.Height; r++ {
		for c := 0; c < m.Width; c++ {
			v := m.At(r, c)
			var g byte
			if v == v && span > 0 {
				g = byte(255 * (v - min) / span)
			}
			img.SetGray(c, r, color.Gray{Y: g})
		}
	}
	return writePNG(img, path)
}

func writeCorrPreview(m bicos.CorrMap, path string) error {
	img := image.NewGray(image.Rect(0, 0, m.Width, m.Height))
	for r := 0; r < m.Height; r++ {
		for c := 0; c < m.Width; c++ {
			v := m.At(r, c)
			g := byte(255 * (v + 1) / 2)
			img.SetGray(c, r, color.Gray{Y: g})
		}
	}
	return writePNG(img, path)
}

func writePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return png.Encode(f, img)
}
