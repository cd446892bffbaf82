package raw

import "github.com/pdfuse/pdfuse/geo"

// Typed lookups over a document. Every accessor resolves indirect
// references before inspecting the value.

// GetDict returns the dictionary under key, following references.
// Stream dictionaries are returned for stream-valued keys.
func (d *Document) GetDict(dict *DictObj, key string) (*DictObj, bool) {
	if dict == nil {
		return nil, false
	}
	obj, ok := dict.Get(key)
	if !ok {
		return nil, false
	}
	switch v := d.Resolve(obj).(type) {
	case *DictObj:
		return v, true
	case *StreamObj:
		return v.Dict, true
	}
	return nil, false
}

// GetArray returns the array under key, following references.
func (d *Document) GetArray(dict *DictObj, key string) (*ArrayObj, bool) {
	if dict == nil {
		return nil, false
	}
	obj, ok := dict.Get(key)
	if !ok {
		return nil, false
	}
	arr, ok := d.Resolve(obj).(*ArrayObj)
	return arr, ok
}

// GetStream returns the stream under key, following references.
func (d *Document) GetStream(dict *DictObj, key string) (*StreamObj, bool) {
	if dict == nil {
		return nil, false
	}
	obj, ok := dict.Get(key)
	if !ok {
		return nil, false
	}
	st, ok := d.Resolve(obj).(*StreamObj)
	return st, ok
}

// GetName returns the name value under key.
func (d *Document) GetName(dict *DictObj, key string) (string, bool) {
	if dict == nil {
		return "", false
	}
	obj, ok := dict.Get(key)
	if !ok {
		return "", false
	}
	n, ok := d.Resolve(obj).(NameObj)
	if !ok {
		return "", false
	}
	return n.Val, true
}

// GetInt returns the integer value under key.
func (d *Document) GetInt(dict *DictObj, key string) (int64, bool) {
	if dict == nil {
		return 0, false
	}
	obj, ok := dict.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := d.Resolve(obj).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Int(), true
}

// GetFloat returns the numeric value under key as a float.
func (d *Document) GetFloat(dict *DictObj, key string) (float64, bool) {
	if dict == nil {
		return 0, false
	}
	obj, ok := dict.Get(key)
	if !ok {
		return 0, false
	}
	n, ok := d.Resolve(obj).(NumberObj)
	if !ok {
		return 0, false
	}
	return n.Float(), true
}

// GetString returns the string bytes under key.
func (d *Document) GetString(dict *DictObj, key string) ([]byte, bool) {
	if dict == nil {
		return nil, false
	}
	obj, ok := dict.Get(key)
	if !ok {
		return nil, false
	}
	s, ok := d.Resolve(obj).(StringObj)
	if !ok {
		return nil, false
	}
	return s.Bytes, true
}

// GetRect returns the 4-number array under key as a normalized rectangle.
func (d *Document) GetRect(dict *DictObj, key string) (geo.Rect, bool) {
	arr, ok := d.GetArray(dict, key)
	if !ok || arr.Len() < 4 {
		return geo.Rect{}, false
	}
	var vals [4]float64
	for i := 0; i < 4; i++ {
		n, ok := d.Resolve(arr.Items[i]).(NumberObj)
		if !ok {
			return geo.Rect{}, false
		}
		vals[i] = n.Float()
	}
	r := geo.Rect{LLX: vals[0], LLY: vals[1], URX: vals[2], URY: vals[3]}
	return r.Normalized(), true
}

// RectArray converts a rectangle to its array form.
func RectArray(r geo.Rect) *ArrayObj {
	return NewArray(Float(r.LLX), Float(r.LLY), Float(r.URX), Float(r.URY))
}
