// Package handles provides the reference-counted encoder and output handles
// shared across output pipelines.
//
// A Table creates handles through an EncoderFactory and an OutputFactory.
// Encoders are shared: every output that attaches an encoder takes a
// reference, and the last Release destroys the underlying primitive.
//
// Encoders attached to an active output are locked. Only the dynamic
// field set (see DynamicFields) may change while a single active output
// consumes the encoder, and nothing may change while two or more outputs
// share it through the "use stream encoder" alias.
//
//	table := handles.NewTable(encFactory, outFactory, logger)
//	enc, err := table.CreateEncoder(handles.MediaVideo, "x264", "stream_video", settings)
//	out, err := table.CreateOutput(handles.OutputStream, "rtmp_output", "stream", nil)
//	out.SetVideoEncoder(enc)
//	enc.Release() // out still holds a reference
//	out.Release() // destroys both
package handles
