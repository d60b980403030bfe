//go:build darwin

package reactor

func tryEventfd() (int, bool) { return 0, false }
