package s3

import (
	"io"
	"sync"

	"github.com/dreschagin/securecam/internal/application/port"
)

// progressReader считает прочитанные байты и сообщает процент.
//
// SDK читает тело несколько раз: сначала считает хеш и контрольную сумму,
// потом перематывает тело в начало и отправляет его. Поэтому перемотка в начало
// начинает отсчет заново, а 100 сообщает только put после ответа S3.
type progressReader struct {
	r        io.Reader
	total    int64
	progress port.ProgressFunc

	mu       sync.Mutex
	read     int64
	reported int
}

// maxReadPercent: чтение тела еще не значит, что объект принят.
const maxReadPercent = 99

// progressReadSeeker сохраняет io.Seeker, без него SDK не может посчитать хеш тела.
type progressReadSeeker struct {
	*progressReader
	seeker io.Seeker
}

func newProgressReader(r io.Reader, total int64, progress port.ProgressFunc) io.Reader {
	base := &progressReader{r: r, total: total, progress: progress, reported: -1}
	if seeker, ok := r.(io.Seeker); ok {
		return &progressReadSeeker{progressReader: base, seeker: seeker}
	}
	return base
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.advance(int64(n))
	}
	return n, err
}

func (p *progressReader) advance(n int64) {
	p.mu.Lock()
	p.read += n
	percent := maxReadPercent
	if p.total > 0 {
		percent = int(p.read * 100 / p.total)
		if percent > maxReadPercent {
			percent = maxReadPercent
		}
	}
	notify := percent > p.reported
	if notify {
		p.reported = percent
	}
	p.mu.Unlock()

	if notify && p.progress != nil {
		p.progress(percent)
	}
}

func (p *progressReadSeeker) Seek(offset int64, whence int) (int64, error) {
	pos, err := p.seeker.Seek(offset, whence)
	if err == nil {
		p.mu.Lock()
		p.read = pos
		if pos == 0 {
			p.reported = -1
		}
		p.mu.Unlock()
	}
	return pos, err
}
