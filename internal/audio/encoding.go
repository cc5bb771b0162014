package audio

// Encoding is a MIME-style identifier for an utterance container.
type Encoding string

const (
	EncodingWebMOpus Encoding = "audio/webm;codecs=opus"
	EncodingWebM     Encoding = "audio/webm"
	EncodingOggOpus  Encoding = "audio/ogg;codecs=opus"
	EncodingMP4      Encoding = "audio/mp4"
)

// DefaultEncoding is used when no preferred encoding reports as supported.
const DefaultEncoding = EncodingWebM

// PreferredEncodings is the negotiation order for outbound utterances.
var PreferredEncodings = []Encoding{
	EncodingWebMOpus,
	EncodingWebM,
	EncodingOggOpus,
	EncodingMP4,
}

// Negotiate returns the first preferred encoding the predicate accepts.
func Negotiate(supports func(Encoding) bool) Encoding {
	if supports == nil {
		return DefaultEncoding
	}
	for _, enc := range PreferredEncodings {
		if supports(enc) {
			return enc
		}
	}
	return DefaultEncoding
}

// Container returns the container part of the encoding ("webm", "ogg", "mp4").
func (e Encoding) Container() string {
	switch e {
	case EncodingWebMOpus, EncodingWebM:
		return "webm"
	case EncodingOggOpus:
		return "ogg"
	case EncodingMP4:
		return "mp4"
	default:
		return ""
	}
}
