package lookup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Product is the lookup service's answer for a symbol. Only Status is
// interpreted; "success" means the product was found, other values such as
// "not_found" or "error" are still well-formed answers. The payload is
// otherwise opaque: Fields holds every field as received and the product
// marshals back to its original body.
type Product struct {
	Status string

	// Common string fields, set when the payload carries them as strings
	Barcode string
	Name    string
	Brand   string
	Image   string
	Message string

	Fields map[string]any
	Raw    json.RawMessage
}

var errNoStatus = errors.New("response has no status")

// UnmarshalJSON requires a JSON object whose status, when present, is a string.
// Other fields are accepted whatever their type.
func (p *Product) UnmarshalJSON(data []byte) error {
	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return err
	}
	if fields == nil {
		return errors.New("response is not an object")
	}

	var product Product
	if raw, ok := fields["status"]; ok && raw != nil {
		status, ok := raw.(string)
		if !ok {
			return fmt.Errorf("status is %T, not a string", raw)
		}
		product.Status = status
	}
	product.Barcode = stringField(fields, "barcode")
	product.Name = stringField(fields, "name")
	product.Brand = stringField(fields, "brand")
	product.Image = stringField(fields, "image")
	product.Message = stringField(fields, "message")
	product.Fields = fields
	product.Raw = append(json.RawMessage(nil), data...)

	*p = product
	return nil
}

// MarshalJSON returns the payload as received
func (p Product) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	fields := make(map[string]any, len(p.Fields)+1)
	for k, v := range p.Fields {
		fields[k] = v
	}
	fields["status"] = p.Status
	for k, v := range map[string]string{"barcode": p.Barcode, "name": p.Name, "brand": p.Brand, "image": p.Image, "message": p.Message} {
		if v != "" {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// Field returns a payload field by name
func (p *Product) Field(name string) (any, bool) {
	if p == nil {
		return nil, false
	}
	v, ok := p.Fields[name]
	return v, ok
}

// Found reports whether the service recognized the product
func (p *Product) Found() bool {
	return p != nil && p.Status == "success"
}

func stringField(fields map[string]any, name string) string {
	s, _ := fields[name].(string)
	return s
}
