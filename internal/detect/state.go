package detect

// State is the shared per-frame detection state. It is allocated once at
// cascade initialization, reset (not reallocated) at the start of every
// pass, and released at teardown. Stages narrow the surviving-index set in
// turn and write their per-window scores here; because each stage fully
// consumes the previous stage's output, no locking is needed within a pass.
type State struct {
	// Posteriors holds the ensemble posterior per window, indexed by
	// window position in the grid.
	Posteriors []float32

	// Variances holds the variance-stage score per window.
	Variances []float64

	// FeatureVectors holds the fern leaf index per tree per window,
	// laid out as window*numTrees+tree.
	FeatureVectors []int

	// Surviving is the reusable surviving-index buffer. Each stage
	// narrows it in place; its capacity stays pinned at the grid size.
	Surviving []int

	// Confident holds the indices that survived every stage of the last
	// pass, in grid order.
	Confident []int

	// Valid is false until a detection pass completes.
	Valid bool
}

// NewState allocates detection state for the given grid size.
func NewState(numWindows, numTrees int) *State {
	return &State{
		Posteriors:     make([]float32, numWindows),
		Variances:      make([]float64, numWindows),
		FeatureVectors: make([]int, numWindows*numTrees),
		Surviving:      make([]int, 0, numWindows),
		Confident:      make([]int, 0, numWindows),
	}
}

// NumWindows returns the grid size the state was allocated for.
func (s *State) NumWindows() int { return len(s.Posteriors) }

// Reset clears the state for a new frame without releasing storage.
func (s *State) Reset() {
	s.Valid = false
	s.Surviving = s.Surviving[:0]
	s.Confident = s.Confident[:0]
	for i := range s.Posteriors {
		s.Posteriors[i] = 0
	}
	for i := range s.Variances {
		s.Variances[i] = 0
	}
	for i := range s.FeatureVectors {
		s.FeatureVectors[i] = 0
	}
}

// SeedSurviving fills the surviving buffer with the full index range
// [0, n) and returns it. Called once at the start of every pass before the
// first stage narrows it.
func (s *State) SeedSurviving(n int) []int {
	s.Surviving = s.Surviving[:0]
	for i := 0; i < n; i++ {
		s.Surviving = append(s.Surviving, i)
	}
	return s.Surviving
}
