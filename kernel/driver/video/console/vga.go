package console

// vgaTextFramebuffer is the fixed physical address of the legacy VGA text
// mode framebuffer, identity-mapped by the bootloader.
const vgaTextFramebuffer = 0xB8000

// Vga implements an 80x25 text console against the legacy VGA text mode
// framebuffer at its well-known physical address. It is a thin,
// fixed-geometry specialization of Ega: every operation is delegated there.
type Vga struct {
	Ega
}

// Init sets up the console. Calling Init more than once is a no-op, since
// the framebuffer slice only needs constructing the first time.
func (cons *Vga) Init() {
	if cons.Ega.fb != nil {
		return
	}
	cons.Ega.Init(80, 25, vgaTextFramebuffer)
}
