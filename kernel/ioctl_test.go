package kernel

import "testing"

func TestIocEncodesDirectionAndSize(t *testing.T) {
	cmd := iowr(ttIoctlType, 1, 8)
	dir := (cmd >> iocDirShift) & ((1 << iocDirBits) - 1)
	typ := (cmd >> iocTypeShift) & ((1 << iocTypeBits) - 1)
	nr := (cmd >> iocNrShift) & ((1 << iocNrBits) - 1)
	size := (cmd >> iocSizeShift) & ((1 << iocSizeBits) - 1)

	if dir != iocRead|iocWrite {
		t.Errorf("dir = %#x, want read|write", dir)
	}
	if typ != ttIoctlType {
		t.Errorf("type = %#x, want %#x", typ, ttIoctlType)
	}
	if nr != 1 {
		t.Errorf("nr = %d, want 1", nr)
	}
	if size != 8 {
		t.Errorf("size = %d, want 8", size)
	}
}

func TestNoArgCommandHasNoneDirection(t *testing.T) {
	cmd := io(ttIoctlType, 7)
	dir := (cmd >> iocDirShift) & ((1 << iocDirBits) - 1)
	if dir != iocNone {
		t.Errorf("dir = %#x, want none", dir)
	}
}
