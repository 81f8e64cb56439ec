package common

import "errors"

// ErrModulePaused marks operations rejected because their module is paused.
var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause switch of one or more modules.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused when the module is paused. A nil view or an
// empty module name never blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}
