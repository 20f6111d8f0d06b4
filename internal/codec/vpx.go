//go:build vpx && cgo

package codec

/*
#cgo pkg-config: vpx
#include <vpx/vpx_encoder.h>
#include <vpx/vpx_decoder.h>
#include <vpx/vp8cx.h>
#include <vpx/vp8dx.h>
#include <stdlib.h>
#include <string.h>

typedef struct {
    vpx_codec_ctx_t codec;
    vpx_image_t raw;
    int width;
    int height;
    int64_t pts;
} vp9_enc;

static vp9_enc* vp9_enc_new(int width, int height, int fps, int kbps) {
    vp9_enc* e = (vp9_enc*)calloc(1, sizeof(vp9_enc));
    if (!e) return NULL;
    vpx_codec_enc_cfg_t cfg;
    if (vpx_codec_enc_config_default(vpx_codec_vp9_cx(), &cfg, 0) != VPX_CODEC_OK) {
        free(e);
        return NULL;
    }
    cfg.g_w = width;
    cfg.g_h = height;
    cfg.g_timebase.num = 1;
    cfg.g_timebase.den = fps;
    cfg.rc_target_bitrate = kbps;
    cfg.rc_end_usage = VPX_CBR;
    cfg.g_error_resilient = VPX_ERROR_RESILIENT_DEFAULT;
    cfg.g_lag_in_frames = 0;
    cfg.g_threads = 4;
    cfg.kf_mode = VPX_KF_AUTO;
    cfg.kf_max_dist = fps * 2;
    if (vpx_codec_enc_init(&e->codec, vpx_codec_vp9_cx(), &cfg, 0) != VPX_CODEC_OK) {
        free(e);
        return NULL;
    }
    vpx_codec_control(&e->codec, VP8E_SET_CPUUSED, 8);
    vpx_codec_control(&e->codec, VP9E_SET_ROW_MT, 1);
    if (!vpx_img_alloc(&e->raw, VPX_IMG_FMT_I420, width, height, 16)) {
        vpx_codec_destroy(&e->codec);
        free(e);
        return NULL;
    }
    e->width = width;
    e->height = height;
    return e;
}

static void vp9_enc_free(vp9_enc* e) {
    if (!e) return;
    vpx_img_free(&e->raw);
    vpx_codec_destroy(&e->codec);
    free(e);
}

static void copy_plane(uint8_t* dst, int dst_stride, const uint8_t* src, int src_stride, int w, int h) {
    for (int y = 0; y < h; y++) {
        memcpy(dst + y * dst_stride, src + y * src_stride, w);
    }
}

static const uint8_t* vp9_enc_frame(vp9_enc* e,
        const uint8_t* y, int ys, const uint8_t* u, const uint8_t* v, int cs,
        int force_kf, int* out_size) {
    int cw = (e->width + 1) / 2;
    int ch = (e->height + 1) / 2;
    copy_plane(e->raw.planes[VPX_PLANE_Y], e->raw.stride[VPX_PLANE_Y], y, ys, e->width, e->height);
    copy_plane(e->raw.planes[VPX_PLANE_U], e->raw.stride[VPX_PLANE_U], u, cs, cw, ch);
    copy_plane(e->raw.planes[VPX_PLANE_V], e->raw.stride[VPX_PLANE_V], v, cs, cw, ch);
    vpx_enc_frame_flags_t flags = force_kf ? VPX_EFLAG_FORCE_KF : 0;
    *out_size = 0;
    if (vpx_codec_encode(&e->codec, &e->raw, e->pts++, 1, flags, VPX_DL_REALTIME) != VPX_CODEC_OK) {
        return NULL;
    }
    const vpx_codec_cx_pkt_t* pkt;
    vpx_codec_iter_t iter = NULL;
    while ((pkt = vpx_codec_get_cx_data(&e->codec, &iter)) != NULL) {
        if (pkt->kind == VPX_CODEC_CX_FRAME_PKT) {
            *out_size = (int)pkt->data.frame.sz;
            return (const uint8_t*)pkt->data.frame.buf;
        }
    }
    return NULL;
}

static vpx_codec_ctx_t* vp9_dec_new(void) {
    vpx_codec_ctx_t* d = (vpx_codec_ctx_t*)calloc(1, sizeof(vpx_codec_ctx_t));
    if (!d) return NULL;
    if (vpx_codec_dec_init(d, vpx_codec_vp9_dx(), NULL, 0) != VPX_CODEC_OK) {
        free(d);
        return NULL;
    }
    return d;
}

static void vp9_dec_free(vpx_codec_ctx_t* d) {
    if (!d) return;
    vpx_codec_destroy(d);
    free(d);
}

static vpx_image_t* vp9_dec_frame(vpx_codec_ctx_t* d, const uint8_t* data, int size) {
    if (vpx_codec_decode(d, data, size, NULL, 0) != VPX_CODEC_OK) {
        return NULL;
    }
    vpx_codec_iter_t iter = NULL;
    return vpx_codec_get_frame(d, &iter);
}

static uint8_t* img_plane(vpx_image_t* img, int i) { return img->planes[i]; }
static int img_stride(vpx_image_t* img, int i) { return img->stride[i]; }
*/
import "C"

import (
	"errors"
	"image"
	"sync"
	"unsafe"

	"github.com/dkeye/voicemedia/internal/core"
	"github.com/dkeye/voicemedia/internal/media"
)

const vpxAvailable = true

var (
	errVPXInit   = errors.New("codec: vp9 init failed")
	errVPXDecode = errors.New("codec: vp9 decode failed")
)

type vp9Encoder struct {
	mu     sync.Mutex
	ctx    *C.vp9_enc
	width  int
	height int
}

func newVP9Encoder(width, height, fps, kbps int) (core.VideoEncoder, error) {
	if width <= 0 || height <= 0 {
		return nil, media.ErrEmptyFrame
	}
	ctx := C.vp9_enc_new(C.int(width), C.int(height), C.int(fps), C.int(kbps))
	if ctx == nil {
		return nil, errVPXInit
	}
	return &vp9Encoder{ctx: ctx, width: width, height: height}, nil
}

func (e *vp9Encoder) Encode(f media.VideoFrame, forceKey bool) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx == nil {
		return nil, core.ErrClosed
	}
	if f.Width != e.width || f.Height != e.height {
		f = cropFrame(f, e.width, e.height)
	}
	yuv := media.RGBAToI420(f)
	kf := C.int(0)
	if forceKey {
		kf = 1
	}
	var size C.int
	out := C.vp9_enc_frame(e.ctx,
		(*C.uint8_t)(unsafe.Pointer(&yuv.Y[0])), C.int(yuv.YStride),
		(*C.uint8_t)(unsafe.Pointer(&yuv.Cb[0])), (*C.uint8_t)(unsafe.Pointer(&yuv.Cr[0])), C.int(yuv.CStride),
		kf, &size)
	if out == nil || size == 0 {
		return nil, nil
	}
	return C.GoBytes(unsafe.Pointer(out), size), nil
}

func (e *vp9Encoder) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		C.vp9_enc_free(e.ctx)
		e.ctx = nil
	}
}

// cropFrame trims odd edges so the frame matches the encoder's even size.
func cropFrame(f media.VideoFrame, w, h int) media.VideoFrame {
	out := media.VideoFrame{Width: w, Height: h, Pixels: make([]byte, w*h*media.BytesPerPixel)}
	for y := 0; y < h && y < f.Height; y++ {
		src := f.Pixels[y*f.Width*media.BytesPerPixel:]
		copy(out.Pixels[y*w*media.BytesPerPixel:(y+1)*w*media.BytesPerPixel], src)
	}
	return out
}

type vp9Decoder struct {
	mu  sync.Mutex
	ctx *C.vpx_codec_ctx_t
}

func newVP9Decoder() (core.VideoDecoder, error) {
	ctx := C.vp9_dec_new()
	if ctx == nil {
		return nil, errVPXInit
	}
	return &vp9Decoder{ctx: ctx}, nil
}

func (d *vp9Decoder) Decode(frame []byte) (image.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx == nil {
		return nil, core.ErrClosed
	}
	if len(frame) == 0 {
		return nil, errVPXDecode
	}
	img := C.vp9_dec_frame(d.ctx, (*C.uint8_t)(unsafe.Pointer(&frame[0])), C.int(len(frame)))
	if img == nil {
		return nil, errVPXDecode
	}
	w, h := int(img.d_w), int(img.d_h)
	out := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	copyPlane(out.Y, out.YStride, img, 0, w, h)
	cw, ch := (w+1)/2, (h+1)/2
	copyPlane(out.Cb, out.CStride, img, 1, cw, ch)
	copyPlane(out.Cr, out.CStride, img, 2, cw, ch)
	return out, nil
}

func copyPlane(dst []byte, dstStride int, img *C.vpx_image_t, plane, w, h int) {
	base := unsafe.Pointer(C.img_plane(img, C.int(plane)))
	stride := int(C.img_stride(img, C.int(plane)))
	src := unsafe.Slice((*byte)(base), stride*h)
	for y := 0; y < h; y++ {
		copy(dst[y*dstStride:y*dstStride+w], src[y*stride:y*stride+w])
	}
}

func (d *vp9Decoder) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx != nil {
		C.vp9_dec_free(d.ctx)
		d.ctx = nil
	}
}
