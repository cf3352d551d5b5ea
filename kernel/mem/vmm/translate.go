package vmm

import "github.com/nucleos-project/nucleus/kernel"

// Translate returns the physical address that virtAddr currently maps to, or
// ErrInvalidMapping if virtAddr is not mapped.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pte, err := pteForAddress(virtAddr)
	if err != nil {
		return 0, err
	}

	return pte.Frame().Address() + (virtAddr & ((1 << pageLevelShifts[pageLevels-1]) - 1)), nil
}
