package vmm

// On amd64 the MMU walks four page table levels (PML4, PDPT, PD, PT), each
// indexed by 9 bits of the virtual address, with the final 12 bits selecting
// a byte inside the mapped 4K frame.
const (
	pageLevels = 4

	// recursiveEntryIndex is the PML4 slot (511, the last one) whose entry
	// Init() points back to the PML4 frame itself, making every page
	// table in the active hierarchy reachable through a fixed virtual
	// address.
	recursiveEntryIndex = uintptr(511)

	// pdtVirtualAddr is the virtual address obtained by indexing the
	// recursive slot at all four paging levels; dereferencing it accesses
	// the top-most table (PML4) itself. walk() re-derives the address for
	// every other table level by shifting in the target address's own
	// indices one level at a time.
	pdtVirtualAddr = uintptr(0xfffffffffffff000)

	// tempMappingAddr is a fixed virtual address reserved for short-lived
	// mappings (e.g. to zero a freshly allocated page table frame before
	// linking it in). It reuses the same PDPT/PD/PT chain as the
	// recursive window (indices 511/511/511) but picks a distinct PML4
	// slot (tempMappingEntryIndex) so it never aliases the recursive
	// self-mapping.
	tempMappingAddr = uintptr(0xffffff7ffffff000)

	// tempMappingEntryIndex is the PML4 slot tempMappingAddr resolves
	// through. Like recursiveEntryIndex, it must stay private to each
	// table rather than being aliased from KTable into a TTable: two
	// tables sharing it would race over the one temporary mapping window
	// either could be using at a given moment.
	tempMappingEntryIndex = uintptr(510)
)

var (
	pageLevelShifts = [pageLevels]uintptr{39, 30, 21, 12}
	pageLevelBits   = [pageLevels]uintptr{9, 9, 9, 9}
)

const (
	// FlagPresent indicates that the page table entry points to a valid
	// frame (or table).
	FlagPresent = PageTableEntryFlag(1 << 0)
	// FlagRW marks a page (or table) as writable.
	FlagRW = PageTableEntryFlag(1 << 1)
	// FlagUser allows user-mode access to the mapped page.
	FlagUser = PageTableEntryFlag(1 << 2)
	// FlagHugePage marks a 2M/1G page table entry.
	FlagHugePage = PageTableEntryFlag(1 << 7)
	// FlagCopyOnWrite is a software-only flag (stored in an otherwise
	// unused bit) marking a read-only page that should be duplicated on
	// the next write fault.
	FlagCopyOnWrite = PageTableEntryFlag(1 << 9)
	// FlagNoExecute prevents instruction fetches from the mapped page.
	FlagNoExecute = PageTableEntryFlag(1 << 63)

	// ptePhysPageMask masks out the flag bits, leaving only the physical
	// frame address encoded in a page table entry.
	ptePhysPageMask = uintptr(0x000ffffffffff000)
)
