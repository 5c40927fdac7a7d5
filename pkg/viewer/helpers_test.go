package viewer

import (
	"encoding/binary"
	"io"

	"triplanar/pkg/nifti"
)

func writeHeader(w io.Writer, h *nifti.Header) error {
	return binary.Write(w, binary.LittleEndian, h)
}
