package soundfmt

import "unsafe"

func nativeEndian() Format {
	var x uint16 = 1
	b := (*[2]byte)(unsafe.Pointer(&x))
	if b[0] == 1 {
		return LE
	}
	return BE
}
