package fhirpath

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// registerStringFunctions wires the string-manipulation functions. Each
// operates on a singleton String focus through Singleton: an empty focus,
// or a single item with no implicit conversion to String, yields Empty,
// and a focus of more than one item is an error.
func registerStringFunctions(r *Registry) {
	r.registerSyncFunc("indexOf", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		sub, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{Integer(strings.Index(string(s), string(sub)))}, true, nil
	})
	r.registerSyncFunc("substring", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		start, ok, err := argSingleton[Integer](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		runes := []rune(string(s))
		if start < 0 || int(start) >= len(runes) {
			return nil, true, nil
		}
		length := len(runes) - int(start)
		if len(args) > 1 {
			n, ok, err := argSingleton[Integer](args, 1)
			if err != nil {
				return nil, true, err
			}
			if ok && int(n) < length {
				length = int(n)
			}
		}
		if length < 0 {
			length = 0
		}
		return Collection{String(string(runes[start : int(start)+length]))}, true, nil
	})
	r.registerSyncFunc("startsWith", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		return stringPredicate(focus, args, strings.HasPrefix)
	})
	r.registerSyncFunc("endsWith", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		return stringPredicate(focus, args, strings.HasSuffix)
	})
	r.registerSyncFunc("contains", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		return stringPredicate(focus, args, strings.Contains)
	})
	r.registerSyncFunc("upper", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{String(strings.ToUpper(string(s)))}, true, nil
	})
	r.registerSyncFunc("lower", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{String(strings.ToLower(string(s)))}, true, nil
	})
	r.registerSyncFunc("replace", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		pattern, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		replacement, ok, err := argSingleton[String](args, 1)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{String(strings.ReplaceAll(string(s), string(pattern), string(replacement)))}, true, nil
	})
	r.registerSyncFunc("matches", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		pattern, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		re, err := regexp.Compile(string(pattern))
		if err != nil {
			return nil, true, err
		}
		return Collection{Boolean(re.MatchString(string(s)))}, true, nil
	})
	r.registerSyncFunc("matchesFull", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		pattern, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		re, err := regexp.Compile(`^(?:` + string(pattern) + `)$`)
		if err != nil {
			return nil, true, err
		}
		return Collection{Boolean(re.MatchString(string(s)))}, true, nil
	})
	r.registerSyncFunc("replaceMatches", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		pattern, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		replacement, ok, err := argSingleton[String](args, 1)
		if err != nil || !ok {
			return nil, true, err
		}
		re, err := regexp.Compile(string(pattern))
		if err != nil {
			return nil, true, err
		}
		return Collection{String(re.ReplaceAllString(string(s), string(replacement)))}, true, nil
	})
	r.registerSyncFunc("length", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{Integer(len([]rune(string(s))))}, true, nil
	})
	r.registerSyncFunc("toChars", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		var out Collection
		for _, ch := range string(s) {
			out = append(out, String(string(ch)))
		}
		return out, true, nil
	})
	r.registerSyncFunc("trim", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		return Collection{String(strings.TrimSpace(string(s)))}, true, nil
	})
	r.registerSyncFunc("split", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		sep, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		var out Collection
		for _, part := range strings.Split(string(s), string(sep)) {
			out = append(out, String(part))
		}
		return out, true, nil
	})
	r.registerSyncFunc("join", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		sep := ""
		if len(args) > 0 {
			s, ok, err := argSingleton[String](args, 0)
			if err != nil {
				return nil, true, err
			}
			if ok {
				sep = string(s)
			}
		}
		parts := make([]string, 0, len(focus))
		for _, v := range focus {
			s, ok, err := valueTo[String](v, false)
			if err != nil {
				return nil, true, err
			}
			if ok {
				parts = append(parts, string(s))
			}
		}
		return Collection{String(strings.Join(parts, sep))}, true, nil
	})
	r.registerSyncFunc("encode", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		scheme, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		encoded, err := encodeString(string(s), string(scheme))
		if err != nil {
			return nil, true, err
		}
		return Collection{String(encoded)}, true, nil
	})
	r.registerSyncFunc("decode", CategoryString, func(focus Collection, args []Arg) (Collection, bool, error) {
		s, ok, err := Singleton[String](focus)
		if err != nil || !ok {
			return nil, true, err
		}
		scheme, ok, err := argSingleton[String](args, 0)
		if err != nil || !ok {
			return nil, true, err
		}
		decoded, err := decodeString(string(s), string(scheme))
		if err != nil {
			return nil, true, err
		}
		return Collection{String(decoded)}, true, nil
	})
}

func stringPredicate(focus Collection, args []Arg, pred func(s, sub string) bool) (Collection, bool, error) {
	s, ok, err := Singleton[String](focus)
	if err != nil || !ok {
		return nil, true, err
	}
	sub, ok, err := argSingleton[String](args, 0)
	if err != nil || !ok {
		return nil, true, err
	}
	return Collection{Boolean(pred(string(s), string(sub)))}, true, nil
}

// encodeString/decodeString implement encode()/decode()'s hex/base64/urlbase64
// schemes.
func encodeString(s, scheme string) (string, error) {
	switch scheme {
	case "hex":
		return hex.EncodeToString([]byte(s)), nil
	case "base64":
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	case "urlbase64":
		return base64.URLEncoding.EncodeToString([]byte(s)), nil
	default:
		return "", fmt.Errorf("encode(): unsupported scheme %q", scheme)
	}
}

func decodeString(s, scheme string) (string, error) {
	switch scheme {
	case "hex":
		b, err := hex.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "base64":
		b, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "urlbase64":
		b, err := base64.URLEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case "urlcomponent":
		decoded, err := url.QueryUnescape(s)
		if err != nil {
			return "", err
		}
		return decoded, nil
	default:
		return "", fmt.Errorf("decode(): unsupported scheme %q", scheme)
	}
}
