package mux

// FFmpeg settings shared by every invocation.
const (
	FFmpegCommand = "ffmpeg"

	LogLevel        = "info"
	FastStartFlag   = "faststart"
	OutputFormatMP4 = "mp4"

	// audio settings for ModeTranscode
	TranscodeAudioCodec   = "aac"
	TranscodeAudioBitrate = "192k"
)

// BuildMergeArgs returns the ffmpeg arguments that combine the first video
// stream of videoPath with the first audio stream of audioPath into an MP4 at
// outputPath.
func BuildMergeArgs(mode Mode, videoPath, audioPath, outputPath string) []string {
	args := []string{
		"-hide_banner", "-nostdin", "-nostats", "-y",
		"-loglevel", LogLevel,
		"-i", videoPath,
		"-i", audioPath,
	}

	if mode == ModeTranscode {
		args = append(args, "-c:v", "copy", "-c:a", TranscodeAudioCodec, "-b:a", TranscodeAudioBitrate)
	} else {
		args = append(args, "-c", "copy")
	}

	return append(args,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-movflags", FastStartFlag,
		"-f", OutputFormatMP4,
		outputPath,
	)
}

// BuildConcatArgs returns the ffmpeg arguments that join the files named in
// fileList with the concat demuxer, without re-encoding.
func BuildConcatArgs(fileList, outputPath string) []string {
	return []string{
		"-hide_banner", "-nostdin", "-nostats", "-y",
		"-loglevel", LogLevel,
		"-f", "concat",
		"-safe", "0",
		"-i", fileList,
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		outputPath,
	}
}
