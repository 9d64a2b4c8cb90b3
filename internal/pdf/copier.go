package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	pdflib "github.com/digitorus/pdf"
)

// maxCopyDepth bounds the nesting of direct objects within one object. A
// dictionary that refers to its own object number looks direct to the reader
// and is caught here.
const maxCopyDepth = 64

var errTooDeep = errors.New("object nesting too deep")

// A Copier copies objects from a Source into a Writer. Every indirect object
// of the source is written to the target once and referenced from then on;
// streams keep their encoded data. Direct objects are inlined.
type Copier struct {
	src   *Source
	w     *Writer
	trans map[objKey]uint32
}

// NewCopier creates a Copier from src to w.
func NewCopier(w *Writer, src *Source) *Copier {
	return &Copier{
		src:   src,
		w:     w,
		trans: make(map[objKey]uint32),
	}
}

// Copy returns the PDF syntax of v as it must appear in the target file.
// v itself is always inlined.
func (c *Copier) Copy(v pdflib.Value) (out string, err error) {
	defer catch(&err)

	var buf bytes.Buffer
	if err := c.copyDirect(&buf, v, 0); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// copyValue writes v, reached from an object stored under parent. The reader
// tags values it resolved through a reference with the referenced object
// number; everything else carries the number of its container.
func (c *Copier) copyValue(buf *bytes.Buffer, v pdflib.Value, parent pdflib.Ptr, depth int) error {
	if depth > maxCopyDepth {
		return errTooDeep
	}
	ptr := v.GetPtr()
	if v.Kind() == pdflib.Stream || (ptr.GetID() != 0 && ptr != parent && compound(v)) {
		id, err := c.copyIndirect(v)
		if err != nil {
			return err
		}
		buf.WriteString(Ref(id))
		return nil
	}
	return c.copyDirect(buf, v, depth)
}

func compound(v pdflib.Value) bool {
	k := v.Kind()
	return k == pdflib.Dict || k == pdflib.Array
}

func (c *Copier) copyDirect(buf *bytes.Buffer, v pdflib.Value, depth int) error {
	if depth > maxCopyDepth {
		return errTooDeep
	}

	switch v.Kind() {
	case pdflib.Null:
		buf.WriteString("null")
	case pdflib.Bool:
		buf.WriteString(strconv.FormatBool(v.Bool()))
	case pdflib.Integer:
		buf.WriteString(strconv.FormatInt(v.Int64(), 10))
	case pdflib.Real:
		buf.WriteString(Number(v.Float64()))
	case pdflib.String:
		buf.WriteString(HexString([]byte(v.RawString())))
	case pdflib.Name:
		buf.WriteString(Name(v.Name()))
	case pdflib.Array:
		buf.WriteByte('[')
		for i := 0; i < v.Len(); i++ {
			if i > 0 {
				buf.WriteByte(' ')
			}
			if err := c.copyValue(buf, v.Index(i), v.GetPtr(), depth+1); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case pdflib.Dict:
		buf.WriteString("<<")
		for _, key := range v.Keys() {
			// The page tree is not copied; a /Parent link would drag it in.
			if key == "Parent" {
				continue
			}
			buf.WriteString(Name(key))
			buf.WriteByte(' ')
			if err := c.copyValue(buf, v.Key(key), v.GetPtr(), depth+1); err != nil {
				return err
			}
			buf.WriteByte(' ')
		}
		buf.WriteString(">>")
	case pdflib.Stream:
		id, err := c.copyIndirect(v)
		if err != nil {
			return err
		}
		buf.WriteString(Ref(id))
	default:
		return fmt.Errorf("unsupported object kind %v", v.Kind())
	}
	return nil
}

// copyIndirect writes v as an indirect object of the target, once per source
// object. The number is recorded before the body is copied so reference
// cycles end at the recorded number.
func (c *Copier) copyIndirect(v pdflib.Value) (uint32, error) {
	ptr := v.GetPtr()
	key := objKey{ptr.GetID(), ptr.GetGen()}
	if id, ok := c.trans[key]; ok && key.id != 0 {
		return id, nil
	}

	id := c.w.Alloc()
	if key.id != 0 {
		c.trans[key] = id
	}
	if v.Kind() == pdflib.Stream {
		return id, c.copyStream(id, v)
	}

	var buf bytes.Buffer
	if err := c.copyDirect(&buf, v, 0); err != nil {
		return 0, err
	}
	c.w.Set(id, buf.Bytes())
	return id, nil
}

func (c *Copier) copyStream(id uint32, v pdflib.Value) error {
	raw, rawErr := c.src.rawStream(v)
	skip := map[string]bool{"Length": true}
	if rawErr != nil {
		// Fall back to decoded data, re-encoded by the writer.
		skip["Filter"] = true
		skip["DecodeParms"] = true
	}

	dict, err := c.streamDict(v, skip)
	if err != nil {
		return err
	}

	if rawErr == nil {
		c.w.SetRawStream(id, dict, raw)
		return nil
	}

	data, err := c.src.decodedStream(v)
	if err != nil {
		return fmt.Errorf("failed to read stream %d: %w", v.GetPtr().GetID(), err)
	}
	return c.w.SetStream(id, dict, data)
}

// streamDict copies the entries of a stream dictionary, without the enclosing
// << >>, leaving out the keys in skip.
func (c *Copier) streamDict(v pdflib.Value, skip map[string]bool) (string, error) {
	var buf bytes.Buffer
	for _, key := range v.Keys() {
		if skip[key] {
			continue
		}
		if buf.Len() > 0 {
			buf.WriteByte(' ')
		}
		buf.WriteString(Name(key))
		buf.WriteByte(' ')
		if err := c.copyValue(&buf, v.Key(key), v.GetPtr(), 1); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}
