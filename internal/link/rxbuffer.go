package link

// RxBufferSize is the receive buffer capacity in bytes.
const RxBufferSize = 16

// rxBuffer holds the tail of the peripheral's output since the last command.
type rxBuffer struct {
	buf [RxBufferSize]byte
	n   int
}

func (r *rxBuffer) full() bool { return r.n == len(r.buf) }

func (r *rxBuffer) reset() { r.n = 0 }

// push appends b. The caller handles overflow before pushing.
func (r *rxBuffer) push(b byte) {
	r.buf[r.n] = b
	r.n++
}

func (r *rxBuffer) bytes() []byte { return r.buf[:r.n] }

// endsWith matches want against the buffer tail, walking backwards from
// the last byte. CR and LF are interchangeable.
func (r *rxBuffer) endsWith(want string) bool {
	if r.n < len(want) {
		return false
	}
	off := r.n - len(want)
	for i := len(want) - 1; i >= 0; i-- {
		got, exp := r.buf[off+i], want[i]
		if isEOL(got) && isEOL(exp) {
			continue
		}
		if got != exp {
			return false
		}
	}
	return true
}

func isEOL(b byte) bool { return b == '\r' || b == '\n' }
