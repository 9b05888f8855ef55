package codec

import (
	"testing"

	"github.com/robert-cronin/kvrpc/message"
)

func benchmarkCodec(b *testing.B, c Codec) {
	req := sampleRequest()
	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		data, err := c.Encode(req)
		if err != nil {
			b.Fatal(err)
		}
		var out message.Request
		if err := c.Decode(data, &out); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCodecJSON(b *testing.B)   { benchmarkCodec(b, &JSONCodec{}) }
func BenchmarkCodecBinary(b *testing.B) { benchmarkCodec(b, &BinaryCodec{}) }
