package bicos

import "runtime"

/*------------------------------------------------------------------
 *
 * Purpose:	Public entry point: validates preconditions, picks a
 *		descriptor width, and drives the three (or four, with NXC)
 *		pipeline stages.
 *
 * Description:	Grounded on cpu.cpp's match()/match_impl(): a sequential
 *		dispatcher that multiplexes into one of the three
 *		width-specific internal pipelines based on required_bits,
 *		then optionally layers the NXC agreement pass on top. The
 *		row parallelism itself lives one level down, in
 *		descriptor.go/search.go/agree.go's shared forEachRowBand.
 *
 *------------------------------------------------------------------*/

// Match computes a disparity map between two temporal pixel stacks.
//
// stack0 and stack1 must share N, Width and Height, and N must be at
// least 2. The returned Result.Int is always populated; Result.Float
// and Result.Corr are populated according to cfg.
func Match[U Pixel](stack0, stack1 Stack[U], cfg Config) (Result, error) {
	if err := validateInputs(stack0, stack1); err != nil {
		return Result{}, err
	}

	width, err := pickWidth(stack0.N, cfg.Mode)
	if err != nil {
		return Result{}, err
	}

	bands := runtime.GOMAXPROCS(0)
	variant := cfg.variant()
	cap := requiredBits(stack0.N, cfg.Mode)

	logDebug("dispatch: N=%d mode=%v width=%d bands=%d", stack0.N, cfg.Mode, width, bands)

	var disp IntDispMap
	switch width {
	case 32:
		d0, err := transformGrid32(&stack0, cfg.Mode, cap, bands)
		if err != nil {
			return Result{}, err
		}
		d1, err := transformGrid32(&stack1, cfg.Mode, cap, bands)
		if err != nil {
			return Result{}, err
		}
		disp, err = searchGrid32(stack0.Width, stack0.Height, d0, d1, variant, bands)
		if err != nil {
			return Result{}, err
		}
	case 64:
		d0, err := transformGrid64(&stack0, cfg.Mode, cap, bands)
		if err != nil {
			return Result{}, err
		}
		d1, err := transformGrid64(&stack1, cfg.Mode, cap, bands)
		if err != nil {
			return Result{}, err
		}
		disp, err = searchGrid64(stack0.Width, stack0.Height, d0, d1, variant, bands)
		if err != nil {
			return Result{}, err
		}
	case 128:
		d0, err := transformGrid128(&stack0, cfg.Mode, cap, bands)
		if err != nil {
			return Result{}, err
		}
		d1, err := transformGrid128(&stack1, cfg.Mode, cap, bands)
		if err != nil {
			return Result{}, err
		}
		disp, err = searchGrid128(stack0.Width, stack0.Height, d0, d1, variant, bands)
		if err != nil {
			return Result{}, err
		}
	default:
		return Result{}, &InternalError{Kind: DescriptorWidthMismatch, Msg: "pickWidth returned an unsupported width"}
	}

	result := Result{Int: disp}

	if cfg.NXCorrThreshold == nil {
		return result, nil
	}

	params := agreeParams{
		threshold: *cfg.NXCorrThreshold,
		wantCorr:  cfg.WantCorrMap,
		bands:     bands,
	}
	if cfg.MinVariance != nil {
		scale := *cfg.MinVariance * float64(stack0.N)
		params.minVarScale = &scale
	}

	if cfg.SubpixelStep == nil {
		corr, err := agree(&disp, &stack0, &stack1, params)
		if err != nil {
			return Result{}, err
		}
		result.Int = disp
		if cfg.WantCorrMap {
			result.Corr = corr
			result.HasCorr = true
		}
		return result, nil
	}

	floatDisp, corr, err := agreeSubpixel(&disp, &stack0, &stack1, *cfg.SubpixelStep, params)
	if err != nil {
		return Result{}, err
	}
	result.Float = floatDisp
	result.HasFloat = true
	if cfg.WantCorrMap {
		result.Corr = corr
		result.HasCorr = true
	}
	return result, nil
}

// validateInputs checks the preconditions common to every mode/variant
// combination.
func validateInputs[U Pixel](stack0, stack1 Stack[U]) error {
	if stack0.N < 2 {
		return invalidInput(TooFewImages, "stack has %d frames, need at least 2", stack0.N)
	}
	if !sameShape(stack0, stack1) {
		return invalidInput(MismatchedSize, "stack0 is %dx%dx%d, stack1 is %dx%dx%d",
			stack0.Width, stack0.Height, stack0.N, stack1.Width, stack1.Height, stack1.N)
	}
	return nil
}
