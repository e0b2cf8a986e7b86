// Package audio plays synthesized MP3 clips on the local sound device. Clips
// are decoded with go-mp3 and handed to oto/v3 as 16-bit stereo PCM.
package audio
