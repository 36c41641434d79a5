package utils

import (
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ioctlリクエスト番号のエンコード（linuxの_IOCマクロ相当）
const (
	iocNrBits   = 8
	iocTypeBits = 8
	iocSizeBits = 14

	iocNrShift   = 0
	iocTypeShift = iocNrShift + iocNrBits
	iocSizeShift = iocTypeShift + iocTypeBits
	iocDirShift  = iocSizeShift + iocSizeBits

	iocWrite = 1
	iocRead  = 2
)

// evdevデバイス制御用のIOCTL（input.hより）
const (
	EVIOCGRAB     = iocWrite<<iocDirShift | 'E'<<iocTypeShift | 0x90<<iocNrShift | 4<<iocSizeShift // デバイスの排他制御
	EVIOCSCLOCKID = iocWrite<<iocDirShift | 'E'<<iocTypeShift | 0xa0<<iocNrShift | 4<<iocSizeShift // タイムスタンプのクロック切替
)

func ioc(dir, typ, nr, size uintptr) uintptr {
	return dir<<iocDirShift | typ<<iocTypeShift | nr<<iocNrShift | size<<iocSizeShift
}

// EviocGName はデバイス名取得用のIOCTLリクエストを返す
func EviocGName(size int) uintptr {
	return ioc(iocRead, 'E', 0x06, uintptr(size))
}

// EviocGBit はイベントタイプevのケイパビリティビットマップ取得用のIOCTLリクエストを返す
// ev=0 の場合は対応イベントタイプ一覧のビットマップになる
func EviocGBit(ev, size int) uintptr {
	return ioc(iocRead, 'E', uintptr(0x20+ev), uintptr(size))
}

// IOCtl は整数引数を取るioctlを発行する
func IOCtl(f *os.File, req, arg uintptr) error {
	return rawIOCtl(f, req, arg)
}

// IOCtlPtr はポインタ引数を取るioctlを発行する
func IOCtlPtr(f *os.File, req uintptr, p unsafe.Pointer) error {
	return rawIOCtl(f, req, uintptr(p))
}

// rawIOCtl はSyscallConn経由でioctlを発行する
// Fd()を直接使うとランタイムのポーラーから外れ、読み取り期限が効かなくなるため
func rawIOCtl(f *os.File, req, arg uintptr) error {
	conn, err := f.SyscallConn()
	if err != nil {
		return err
	}

	var ioctlErr error
	err = conn.Control(func(fd uintptr) {
		if _, _, errno := unix.Syscall(unix.SYS_IOCTL, fd, req, arg); errno != 0 {
			ioctlErr = errno
		}
	})
	if err != nil {
		return err
	}
	return ioctlErr
}
