package math

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

/** @brief a 4x4 matrix in row-vector order (translation lives in elements 12-14). */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

/**
 * @brief Placement of an acceleration-container instance, expressed as
 * translation, euler rotation in radians and scale.
 */
type Transform3D struct {
	/** @brief The position in the world. */
	Translation Vec3
	/** @brief The euler rotation in radians. */
	Rotation Vec3
	/** @brief The scale in the world. */
	Scale Vec3
}

func NewVec3(x, y, z float32) Vec3 {
	return Vec3{X: x, Y: y, Z: z}
}

func NewVec3One() Vec3 {
	return Vec3{X: 1, Y: 1, Z: 1}
}

// NewTransform3DIdentity places an instance at the origin without rotation or scaling.
func NewTransform3DIdentity() Transform3D {
	return Transform3D{Scale: NewVec3One()}
}
