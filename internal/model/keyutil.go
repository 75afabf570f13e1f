package model

import "strconv"

func appendInt(b []byte, v int) []byte {
	b = append(b, '|')
	return strconv.AppendInt(b, int64(v), 10)
}

func appendFloat(b []byte, v float64) []byte {
	b = append(b, '|')
	return strconv.AppendFloat(b, v, 'g', -1, 64)
}
