package wire

// RewriteReliableWithNack retransmits a RELIABLE_WITH_NACK frame as a plain
// RELIABLE frame, reclaiming the six bytes spent on the piggybacked NACK's
// start_sequence and flags. src must be a full RELIABLE_WITH_NACK frame
// (NackedHeaderSize header followed by body); the body is copied from
// offset 10 down to offset 4 in dst. dst must have length >=
// len(src)-NackedHeaderSize+BaseHeaderSize.
//
// The original buffered frame (src) is left untouched; callers resend from
// the scratch buffer dst, not src.
func RewriteReliableWithNack(dst []byte, src []byte) int {
	h := GetNacked(src)
	body := src[NackedHeaderSize:]

	PutBase(dst, Base{MessageType: Reliable, ChannelID: h.ChannelID, Sequence: h.Sequence})
	n := copy(dst[BaseHeaderSize:], body)
	return BaseHeaderSize + n
}
