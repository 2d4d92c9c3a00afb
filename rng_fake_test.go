// This project is licensed under the MIT License (see LICENSE).

package tierra

// fakeRNG is a scripted RNG for deterministic tests: Intn always returns
// the configured value (mod n), Float64 always returns the configured
// value.
type fakeRNG struct {
	intnValue    int
	float64Value float64
}

func (f *fakeRNG) Intn(n int) int {
	if n <= 0 {
		return 0
	}
	return f.intnValue % n
}

func (f *fakeRNG) Float64() float64 { return f.float64Value }
func (f *fakeRNG) Int63() int64     { return int64(f.intnValue) }
