// Package serial provides fixed-size binary serializers for index keys and
// values.
//
// Every serializer encodes a value into exactly Size() bytes at a given
// offset of a caller-owned buffer. Decoding requires a buffer of exactly
// Size() bytes; any other length is a format fault (ErrFormat).
//
// All integers are little-endian.
package serial
