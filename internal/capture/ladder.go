package capture

// Constraint profile names, in ladder order.
const (
	ProfileFull    = "full"
	ProfileFacing  = "facing"
	ProfileMinimal = "minimal"
	ProfileFixed   = "fixed"
)

// LadderOptions tune the constraint ladder. Zero values take defaults.
type LadderOptions struct {
	IdealWidth     int
	IdealHeight    int
	MinWidth       int
	MinHeight      int
	IdealFrameRate float64
	AspectRatio    float64
	FixedWidth     int
	FixedHeight    int
}

func (o LadderOptions) withDefaults() LadderOptions {
	if o.IdealWidth <= 0 {
		o.IdealWidth = 1280
	}
	if o.IdealHeight <= 0 {
		o.IdealHeight = 720
	}
	if o.MinWidth <= 0 {
		o.MinWidth = 640
	}
	if o.MinHeight <= 0 {
		o.MinHeight = 480
	}
	if o.IdealFrameRate <= 0 {
		o.IdealFrameRate = 30
	}
	if o.AspectRatio <= 0 {
		o.AspectRatio = 16.0 / 9.0
	}
	if o.FixedWidth <= 0 {
		o.FixedWidth = 640
	}
	if o.FixedHeight <= 0 {
		o.FixedHeight = 480
	}
	return o
}

// DefaultLadder returns the four constraint profiles tried in order when
// acquiring a camera: everything, facing mode only, anything, and finally an
// exact low resolution for devices that reject ranges but accept fixed sizes.
func DefaultLadder(o LadderOptions) []Constraints {
	o = o.withDefaults()
	return []Constraints{
		{
			Profile:     ProfileFull,
			FacingMode:  FacingEnvironment,
			Width:       Dimension{Min: o.MinWidth, Ideal: o.IdealWidth},
			Height:      Dimension{Min: o.MinHeight, Ideal: o.IdealHeight},
			FrameRate:   o.IdealFrameRate,
			AspectRatio: o.AspectRatio,
		},
		{
			Profile:    ProfileFacing,
			FacingMode: FacingEnvironment,
		},
		{
			Profile: ProfileMinimal,
		},
		{
			Profile: ProfileFixed,
			Width:   Dimension{Exact: o.FixedWidth},
			Height:  Dimension{Exact: o.FixedHeight},
		},
	}
}
