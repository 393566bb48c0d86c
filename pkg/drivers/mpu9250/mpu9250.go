// Package mpu9250 is a minimal SPI driver for the shank-mounted MPU-9250.
//
// Only the registers the control loop needs are touched: configuration at
// startup and a single burst read of the accel and gyro blocks per sample.
package mpu9250

import (
	"encoding/binary"
	"fmt"
	"math"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Register addresses.
const (
	regSmplrtDiv    = 0x19
	regConfig       = 0x1A
	regGyroConfig   = 0x1B
	regAccelConfig  = 0x1C
	regAccelConfig2 = 0x1D
	regAccelXoutH   = 0x3B
	regPwrMgmt1     = 0x6B
	regWhoAmI       = 0x75

	whoAmIValue = 0x71
	readFlag    = 0x80
)

// Scale factors for the ranges configured in Init: accel ±4g, gyro ±1000°/s.
const (
	accelScale = 4.0 * 9.80665 / 32768.0
	gyroScale  = 1000.0 / 32768.0 * math.Pi / 180.0
)

// Device is one MPU-9250 on an SPI bus.
type Device struct {
	port spi.PortCloser
	conn spi.Conn
}

// Open initializes the periph host, connects to the named SPI port (empty
// for the first available) and configures the sensor. The DLPF is set to
// 184 Hz so the 1 kHz loop sees fresh data every tick.
func Open(portName string) (*Device, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", portName, err)
	}

	conn, err := port.Connect(physic.MegaHertz, spi.Mode3, 8)
	if err != nil {
		port.Close()
		return nil, fmt.Errorf("spi connect: %w", err)
	}

	d := &Device{port: port, conn: conn}
	if err := d.init(); err != nil {
		port.Close()
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	id, err := d.readReg(regWhoAmI)
	if err != nil {
		return fmt.Errorf("read WHO_AM_I: %w", err)
	}
	if id != whoAmIValue {
		return fmt.Errorf("unexpected WHO_AM_I 0x%02X, want 0x%02X", id, whoAmIValue)
	}

	steps := []struct {
		reg   byte
		value byte
	}{
		{regPwrMgmt1, 0x01},     // clock source: auto-select PLL
		{regConfig, 0x01},       // gyro DLPF 184 Hz
		{regSmplrtDiv, 0x00},    // 1 kHz output rate
		{regGyroConfig, 0x10},   // ±1000 °/s
		{regAccelConfig, 0x08},  // ±4 g
		{regAccelConfig2, 0x01}, // accel DLPF 184 Hz
	}
	for _, s := range steps {
		if err := d.writeReg(s.reg, s.value); err != nil {
			return fmt.Errorf("write reg 0x%02X: %w", s.reg, err)
		}
	}
	return nil
}

// Sample reads one accel+gyro block and derives shank orientation. Roll and
// pitch come from the gravity vector; the sagittal rate is the Y gyro.
func (d *Device) Sample() (roll, pitch, gyroY float64, err error) {
	// Burst: ACCEL_XOUT_H through GYRO_ZOUT_L, 14 bytes.
	raw, err := d.readRegs(regAccelXoutH, 14)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("burst read: %w", err)
	}

	ax := float64(int16(binary.BigEndian.Uint16(raw[0:2]))) * accelScale
	ay := float64(int16(binary.BigEndian.Uint16(raw[2:4]))) * accelScale
	az := float64(int16(binary.BigEndian.Uint16(raw[4:6]))) * accelScale
	// raw[6:8] is temperature, unused.
	gy := float64(int16(binary.BigEndian.Uint16(raw[10:12]))) * gyroScale

	roll = math.Atan2(ay, az)
	pitch = math.Atan2(-ax, math.Hypot(ay, az))
	return roll, pitch, gy, nil
}

// Close releases the SPI port.
func (d *Device) Close() error {
	return d.port.Close()
}

func (d *Device) readReg(reg byte) (byte, error) {
	buf, err := d.readRegs(reg, 1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

func (d *Device) readRegs(reg byte, n int) ([]byte, error) {
	write := make([]byte, n+1)
	read := make([]byte, n+1)
	write[0] = reg | readFlag
	if err := d.conn.Tx(write, read); err != nil {
		return nil, err
	}
	return read[1:], nil
}

func (d *Device) writeReg(reg, value byte) error {
	return d.conn.Tx([]byte{reg, value}, nil)
}
