package sketch

// FlashLayout lists the offsets used when writing an ESP32 image set.
type FlashLayout struct {
	Bootloader  uint32
	Partitions  uint32
	BootApp0    uint32
	Application uint32
	// UseBootApp0 is false on chips whose bootloader does not need boot_app0.
	UseBootApp0 bool
}

// LayoutFor returns the flash layout of family. Unknown families use the classic ESP32 layout.
func LayoutFor(family Family) FlashLayout {
	switch family {
	case FamilyESP32C3, FamilyESP32S3:
		return FlashLayout{
			Bootloader:  0x0,
			Partitions:  0x8000,
			Application: 0x10000,
		}
	default:
		return FlashLayout{
			Bootloader:  0x1000,
			Partitions:  0x8000,
			BootApp0:    0xE000,
			Application: 0x10000,
			UseBootApp0: true,
		}
	}
}
