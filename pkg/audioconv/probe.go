package audioconv

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// Info describes a decoded audio file.
type Info struct {
	Format     string // "mp3", "wav", "opus" or "vorbis"
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// ProbeFile sniffs the container of path and fully decodes it, so a
// truncated or corrupt file is reported as an error.
func ProbeFile(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()

	br := bufio.NewReader(f)
	magic, _ := br.Peek(4)
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return Info{}, err
	}

	switch {
	case len(magic) < 4:
		return Info{}, errors.New("file too short")
	case string(magic) == "RIFF":
		return probeWAV(f)
	case string(magic) == "OggS":
		if info, err := probeOggVorbis(f); err == nil {
			return info, nil
		}
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return Info{}, err
		}
		info, err := probeOggOpus(f)
		if err != nil {
			return Info{}, fmt.Errorf("cannot decode Ogg container as Vorbis or Opus: %w", err)
		}
		return info, nil
	case string(magic[:3]) == "ID3" || (magic[0] == 0xFF && magic[1]&0xE0 == 0xE0):
		return probeMP3(f)
	default:
		return Info{}, fmt.Errorf("%w: magic %q", ErrUnsupported, magic)
	}
}

func probeWAV(r io.ReadSeeker) (Info, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return Info{}, errors.New("invalid wav")
	}

	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || len(pb.Data) == 0 {
		if err == nil {
			err = errors.New("empty wav")
		}
		return Info{}, err
	}

	ch := int(dec.NumChans)
	sr := int(dec.SampleRate)
	if ch <= 0 || sr <= 0 {
		return Info{}, errors.New("invalid wav format")
	}

	frames := len(pb.Data) / ch
	return Info{
		Format:     "wav",
		SampleRate: sr,
		Channels:   ch,
		Duration:   time.Duration(frames) * time.Second / time.Duration(sr),
	}, nil
}

func probeMP3(r io.Reader) (Info, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return Info{}, err
	}

	// decoder output is 16-bit stereo
	n, err := io.Copy(io.Discard, dec)
	if err != nil {
		return Info{}, err
	}

	sr := dec.SampleRate()
	if sr <= 0 || n == 0 {
		return Info{}, errors.New("empty mp3 stream")
	}

	frames := n / 4
	return Info{
		Format:     "mp3",
		SampleRate: sr,
		Channels:   2,
		Duration:   time.Duration(frames) * time.Second / time.Duration(sr),
	}, nil
}

func probeOggVorbis(r io.Reader) (Info, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return Info{}, errors.New("invalid ogg/vorbis stream")
	}

	frames := len(pcm) / format.Channels
	return Info{
		Format:     "vorbis",
		SampleRate: format.SampleRate,
		Channels:   format.Channels,
		Duration:   time.Duration(frames) * time.Second / time.Duration(format.SampleRate),
	}, nil
}

func probeOggOpus(rs io.ReadSeeker) (Info, error) {
	// Opus always decodes at 48 kHz; the encoder's input rate lives in OpusHead.
	rate, err := opusInputRate(rs)
	if err != nil {
		return Info{}, err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return Info{}, err
	}

	dec, err := popus.NewDecoder(rs)
	if err != nil {
		return Info{}, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		frames int
		buf    = make([]int16, 48_000*ch/2)
	)
	for {
		n, err := dec.Read(buf)
		frames += n
		if err == io.EOF {
			break
		}
		if err != nil {
			return Info{}, err
		}
	}
	if frames == 0 {
		return Info{}, errors.New("empty opus stream")
	}

	return Info{
		Format:     "opus",
		SampleRate: rate,
		Channels:   ch,
		Duration:   time.Duration(frames) * time.Second / 48_000,
	}, nil
}

// opusInputRate reads the input sample rate field of the OpusHead packet
// (RFC 7845 section 5.1), which sits in the first Ogg page.
func opusInputRate(r io.Reader) (int, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return 0, err
	}
	head = head[:n]

	i := bytes.Index(head, []byte("OpusHead"))
	if i < 0 || len(head) < i+16 {
		return 0, errors.New("missing OpusHead")
	}

	rate := int(binary.LittleEndian.Uint32(head[i+12 : i+16]))
	if rate == 0 {
		rate = 48_000
	}
	return rate, nil
}
